package protocol

import "partcache/pkg/types"

// DatasetLocations lists, per partition index, the hosts holding it.
type DatasetLocations struct {
	Dataset    types.DatasetID  `json:"dataset"`
	Partitions [][]types.HostID `json:"partitions"`
}

// Snapshot is a full copy of the location registry ordered by dataset id.
type Snapshot []DatasetLocations

// Lookup finds one dataset's locations.
func (s Snapshot) Lookup(id types.DatasetID) (DatasetLocations, bool) {
	for _, d := range s {
		if d.Dataset == id {
			return d, true
		}
	}
	return DatasetLocations{}, false
}

// Hosts returns who holds a partition. Unknown datasets and partitions
// simply yield no hosts.
func (s Snapshot) Hosts(id types.DatasetID, partition int) []types.HostID {
	d, ok := s.Lookup(id)
	if !ok || partition < 0 || partition >= len(d.Partitions) {
		return nil
	}
	return d.Partitions[partition]
}
