package catalog

import (
	"reflect"
	"strings"
	"testing"

	"github.com/relaykms/kmsgate/codec"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Groups()) == 0 || len(c.SKUs()) == 0 {
		t.Fatalf("expected a non-empty catalog")
	}
}

func TestLoadTwiceIsByteIdentical(t *testing.T) {
	c1, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c2, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	windows := codec.MustUUID("55c92734-d682-4d71-983e-d6ec3f16059f")
	n1, _ := c1.AppName(windows)
	n2, _ := c2.AppName(windows)
	if n1 != n2 {
		t.Fatalf("Load is not deterministic: %q != %q", n1, n2)
	}
	if !reflect.DeepEqual(c1.groups, c2.groups) || !reflect.DeepEqual(c1.skus, c2.skus) {
		t.Fatalf("Load is not deterministic: catalog maps differ between loads")
	}
}

func TestWindowsGroupPIDPrefix(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	windows := codec.MustUUID("55c92734-d682-4d71-983e-d6ec3f16059f")
	prefix, known := c.PIDPrefix(windows)
	if !known {
		t.Fatalf("Windows application group not found")
	}
	if prefix != "03612" {
		t.Fatalf("PIDPrefix = %q, want 03612", prefix)
	}
	if got := c.MinClients(windows); got != 25 {
		t.Fatalf("MinClients(Windows) = %d, want 25", got)
	}
}

func TestOffice2016SKUKnown(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sku := codec.MustUUID("d450596f-894d-49e0-966a-fd39ed4c4c64")
	name, known := c.SKUName(sku)
	if !known {
		t.Fatalf("expected Office 2016 SKU to be known")
	}
	if !strings.Contains(name, "2016") {
		t.Fatalf("SKUName = %q, expected it to mention 2016", name)
	}
}

func TestUnknownSKUFallsBackToHex(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	unknown := codec.MustUUID("00000000-0000-0000-0000-000000000001")
	name, known := c.SKUName(unknown)
	if known {
		t.Fatalf("expected unknown SKU")
	}
	if len(name) != 32 {
		t.Fatalf("hex fallback name = %q, want 32 hex chars", name)
	}
}

func TestParseRejectsMalformedPrefix(t *testing.T) {
	bad := []byte(`{"application_groups":[{"uuid":"55c92734-d682-4d71-983e-d6ec3f16059f","display_name":"x","kms_pid_prefix":"12","min_clients":1}],"skus":[]}`)
	if _, err := Parse(bad); err == nil {
		t.Fatalf("expected error for short kms_pid_prefix")
	}
}

func TestParseRejectsBadUUID(t *testing.T) {
	bad := []byte(`{"application_groups":[{"uuid":"not-a-uuid","display_name":"x","kms_pid_prefix":"12345","min_clients":1}],"skus":[]}`)
	if _, err := Parse(bad); err == nil {
		t.Fatalf("expected error for malformed uuid")
	}
}
