package partition

import "fmt"

// DevicePartition is the contiguous range of device indices [DeviceStart, DeviceEnd) simulated by one client.
type DevicePartition struct {
	ClientId    uint64
	DeviceStart uint64
	DeviceEnd   uint64
}

// Size returns the number of devices in the partition.
func (p DevicePartition) Size() uint64 {
	return p.DeviceEnd - p.DeviceStart
}

// Contains reports whether device belongs to the partition.
func (p DevicePartition) Contains(device uint64) bool {
	return device >= p.DeviceStart && device < p.DeviceEnd
}

func (p DevicePartition) String() string {
	return fmt.Sprintf("[%d,%d)", p.DeviceStart, p.DeviceEnd)
}

// Partition splits the device population into one contiguous range per client id in [0, clientCount).
// Every client gets deviceCount/clientCount devices; the remainder of the division is not assigned to anyone.
// clientCount must be positive.
func Partition(clientCount, deviceCount uint64) []DevicePartition {
	perClient := deviceCount / clientCount
	partitions := make([]DevicePartition, clientCount)
	for id := uint64(0); id < clientCount; id++ {
		partitions[id] = DevicePartition{
			ClientId:    id,
			DeviceStart: id * perClient,
			DeviceEnd:   (id + 1) * perClient,
		}
	}
	return partitions
}

// Covered returns the number of devices that Partition assigns to some client.
func Covered(clientCount, deviceCount uint64) uint64 {
	return clientCount * (deviceCount / clientCount)
}
