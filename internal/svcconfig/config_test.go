package svcconfig

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadFillsDefaultsForMissingFields(t *testing.T) {
	v := viper.New()
	v.Set("basepath", "/tmp/yansd-test")
	v.Set("services", []map[string]interface{}{
		{"name": "resolver", "socket": "resolver.sock"},
	})

	tbl, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry, ok := tbl.ByName("resolver")
	if !ok {
		t.Fatalf("resolver entry missing")
	}
	if entry.NProcs != 1 || entry.NFDs != 256 {
		t.Fatalf("defaults not applied: %+v", entry)
	}
}

func TestLoadRejectsEmptyBasePath(t *testing.T) {
	v := viper.New()
	v.Set("basepath", "")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for empty basepath")
	}
}
