// Package topology walks the boot device tree's /cpus/cpu-map node to build
// the kernel's logical CPU and cluster tables.
//
// Grounded on machine_parse_cpu_topology in
// _examples/original_source/kern/machine.c, including its libfdt-workaround
// path: looking a path like "/cpus/cpu-map" up directly fails against some
// device trees once the kernel is running out of high (kernel virtual)
// memory, so "/cpus" is resolved first and "cpu-map" found among its
// children by name instead of as a single path lookup.
package topology

import (
	"encoding/binary"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/platform/devicetree"
)

// CPU is one entry in the topology's flat CPU table (machine_topology_cpu_t).
type CPU struct {
	ID        int // logical id, assigned in discovery order
	ClusterID int
	PhysID    uint32 // MPIDR-derived physical id, read from the cpu node's "reg"
}

// Cluster is one entry in the topology's cluster table
// (machine_topology_cluster_t).
type Cluster struct {
	ID     int
	NumCPU int
}

// Info is the parsed topology (machine_topology_info_t): every CPU and
// cluster found under /cpus/cpu-map, plus which one is the boot CPU.
type Info struct {
	Clusters []Cluster
	CPUs     []CPU

	BootCPU      int
	MaxCPUID     int
	MaxClusterID int
}

// Parse walks t's /cpus/cpu-map node and returns the discovered topology,
// with bootPhysID identifying which discovered CPU is the one this code is
// currently executing on (machine_parse_cpu_topology).
func Parse(t *devicetree.Tree, bootPhysID uint32) (*Info, error) {
	cpuMap, err := lookupCPUMap(t)
	if err != nil {
		return nil, err
	}

	clusterNodes, err := t.Children(cpuMap)
	if err != nil {
		return nil, err
	}

	info := &Info{BootCPU: -1}

	for _, clusterNode := range clusterNodes {
		cluster := Cluster{ID: len(info.Clusters)}

		cpuNodes, err := t.Children(clusterNode)
		if err != nil {
			return nil, err
		}

		for _, coreNode := range cpuNodes {
			raw, err := t.PropertyValue(coreNode, "cpu")
			if err != nil || len(raw) < 4 {
				continue
			}
			phandle := binary.BigEndian.Uint32(raw)

			cpuNode, err := t.LookupPhandle(phandle)
			if err != nil {
				return nil, err
			}

			addr, _, err := t.RegValue(cpuNode)
			if err != nil {
				return nil, err
			}

			cpu := CPU{
				ID:        len(info.CPUs),
				ClusterID: cluster.ID,
				PhysID:    uint32(addr),
			}

			if cpu.PhysID == bootPhysID {
				info.BootCPU = cpu.ID
			}

			if cpu.ID > info.MaxCPUID {
				info.MaxCPUID = cpu.ID
			}

			info.CPUs = append(info.CPUs, cpu)
			cluster.NumCPU++
		}

		if cluster.ID > info.MaxClusterID {
			info.MaxClusterID = cluster.ID
		}

		info.Clusters = append(info.Clusters, cluster)
	}

	if info.BootCPU == -1 {
		return nil, errs.ErrNotFound
	}
	if len(info.CPUs) > defaults.MaxCPUs || len(info.Clusters) > defaults.MaxCPUClusters {
		return nil, errs.ErrNotFound
	}

	return info, nil
}

// lookupCPUMap finds the "cpu-map" node, either directly or (when
// defaults.LibFDTWorkaround is set) by resolving "/cpus" first and then
// scanning its children by name.
func lookupCPUMap(t *devicetree.Tree) (devicetree.Node, error) {
	if !defaults.LibFDTWorkaround {
		return t.LookupPath("/cpus/cpu-map")
	}

	cpus, err := t.LookupPath("/cpus")
	if err != nil {
		return devicetree.Node{}, err
	}

	children, err := t.Children(cpus)
	if err != nil {
		return devicetree.Node{}, err
	}

	for _, c := range children {
		if c.Name == "cpu-map" {
			return c, nil
		}
	}

	return devicetree.Node{}, errs.ErrNotFound
}

// GetBootCPUNum returns the boot CPU's logical id (machine_get_boot_cpu_num).
func (info *Info) GetBootCPUNum() int { return info.BootCPU }

// GetNumClusters returns the number of discovered clusters
// (machine_get_num_clusters).
func (info *Info) GetNumClusters() int { return len(info.Clusters) }

// GetMaxCPUNum returns the highest logical CPU id discovered
// (machine_get_max_cpu_num).
func (info *Info) GetMaxCPUNum() int { return info.MaxCPUID }

// GetNumCPUs returns the number of discovered CPUs (machine_get_num_cpus).
func (info *Info) GetNumCPUs() int { return len(info.CPUs) }
