package api

import (
	"time"

	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/bridge/port"
)

// DumpRequest asks for a page of the forwarding database.
type DumpRequest struct {
	// MaxEntries limits the page size. Zero means DefaultDumpEntries.
	MaxEntries int `json:"max_entries"`
	// Skip is the number of live entries to skip.
	Skip int `json:"skip"`
	// AgeUnit is the unit ages are reported in. Zero means one second.
	AgeUnit time.Duration `json:"age_unit"`
}

// DumpRecord is a forwarding entry as reported to the management plane.
type DumpRecord struct {
	Addr     fdb.MAC    `json:"addr" yaml:"addr"`
	Port     fdb.PortID `json:"port" yaml:"port"`
	PortName string     `json:"port_name,omitempty" yaml:"port_name,omitempty"`
	IsLocal  bool       `json:"is_local" yaml:"is_local"`
	IsStatic bool       `json:"is_static" yaml:"is_static"`
	// Age is expressed in the requested unit.
	Age int64 `json:"age" yaml:"age"`
}

type DumpResponse struct {
	Records []DumpRecord `json:"records"`
	// More is set when the page is full and more entries may follow.
	More bool `json:"more"`
}

type LookupRequest struct {
	Addr fdb.MAC `json:"addr"`
}

type LookupResponse struct {
	Port     fdb.PortID    `json:"port" yaml:"port"`
	PortName string        `json:"port_name,omitempty" yaml:"port_name,omitempty"`
	IsLocal  bool          `json:"is_local" yaml:"is_local"`
	IsStatic bool          `json:"is_static" yaml:"is_static"`
	Age      time.Duration `json:"age" yaml:"age"`
}

// ObserveRequest feeds a frame received on the given port to the bridge.
type ObserveRequest struct {
	Port  fdb.PortID `json:"port"`
	Frame []byte     `json:"frame"`
}

type ObserveResponse struct {
	Verdict string     `json:"verdict" yaml:"verdict"`
	Port    fdb.PortID `json:"port" yaml:"port"`
	Src     fdb.MAC    `json:"src" yaml:"src"`
	Dst     fdb.MAC    `json:"dst" yaml:"dst"`
}

// FlushRequest removes dynamic entries of the given port, or of every port
// if it is zero.
type FlushRequest struct {
	Port fdb.PortID `json:"port"`
}

type FlushResponse struct {
	Deleted int `json:"deleted" yaml:"deleted"`
}

type DeleteRequest struct {
	Addr fdb.MAC `json:"addr"`
}

type SetStaticRequest struct {
	Addr   fdb.MAC `json:"addr"`
	Static bool    `json:"static"`
}

type TopologyChangeRequest struct {
	Active bool `json:"active"`
}

type TopologyChangeResponse struct {
	HoldTime time.Duration `json:"hold_time" yaml:"hold_time"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Entries        int           `json:"entries" yaml:"entries"`
	Buckets        int           `json:"buckets" yaml:"buckets"`
	HoldTime       time.Duration `json:"hold_time" yaml:"hold_time"`
	TopologyChange bool          `json:"topology_change" yaml:"topology_change"`
	Counters       fdb.Stats     `json:"counters" yaml:"counters"`
	Ports          []port.Port   `json:"ports" yaml:"ports"`
}

type Empty struct{}
