/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package svcconfig

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sebcat/yans-go/internal/errs"
)

// ServiceEntry is one row of the service table: a single named worker
// pool's socket path, process/fd ceilings, and tick interval.
type ServiceEntry struct {
	Name         string        `mapstructure:"name"`
	SocketPath   string        `mapstructure:"socket"`
	NProcs       int           `mapstructure:"nprocs"`
	NFDs         int           `mapstructure:"nfds"`
	TickInterval time.Duration `mapstructure:"tick"`
}

// Table is the full parsed service table.
type Table struct {
	BasePath string         `mapstructure:"basepath"`
	User     string         `mapstructure:"user"`
	Group    string         `mapstructure:"group"`
	Services []ServiceEntry `mapstructure:"services"`
}

// DefaultConfig returns a Table seeded with conventional defaults, the
// way the teacher's Component.DefaultConfig seeds a starter config file.
//
// pcap is deliberately absent here: its Handler needs a capture Source
// (AF_PACKET/BPF handle) that cmd/yansd doesn't construct, since no
// packet-capture library lives in this module's dependency set. An
// operator wiring a real capture source adds a "pcap" entry explicitly.
func DefaultConfig() Table {
	return Table{
		BasePath: "/var/run/yansd",
		Services: []ServiceEntry{
			{Name: "resolver", SocketPath: "resolver.sock", NProcs: 2, NFDs: 1024, TickInterval: time.Second},
			{Name: "kng", SocketPath: "kng.sock", NProcs: 2, NFDs: 1024, TickInterval: time.Second},
			{Name: "ethframe", SocketPath: "ethframe.sock", NProcs: 1, NFDs: 256, TickInterval: time.Second},
			{Name: "sysinfoapi", SocketPath: "sysinfoapi.sock", NProcs: 1, NFDs: 64, TickInterval: 5 * time.Second},
		},
	}
}

// Load reads the service table from v, the caller-owned viper instance
// cmd/yansd binds its flags into.
func Load(v *viper.Viper) (Table, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errs.Wrap(err, errs.Policy, "svcconfig: unmarshal")
	}

	if cfg.BasePath == "" {
		return cfg, errs.New(errs.Policy, "svcconfig: basepath is required")
	}

	for i := range cfg.Services {
		s := &cfg.Services[i]
		if s.NProcs <= 0 {
			s.NProcs = 1
		}
		if s.NFDs <= 0 {
			s.NFDs = 256
		}
		if s.TickInterval <= 0 {
			s.TickInterval = time.Second
		}
	}

	return cfg, nil
}

// ByName returns the entry named n, or ok=false if not present.
func (t Table) ByName(n string) (ServiceEntry, bool) {
	for _, s := range t.Services {
		if s.Name == n {
			return s, true
		}
	}
	return ServiceEntry{}, false
}
