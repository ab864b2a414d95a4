package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := validate(&cfg); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestDefaultHWIDMatchesDocumentedConstant(t *testing.T) {
	cfg := Default()
	want := [8]byte{0x36, 0x4F, 0x46, 0x3A, 0x88, 0x63, 0xD3, 0x5F}
	if cfg.HWID != want {
		t.Fatalf("Default().HWID = %x, want %x", cfg.HWID, want)
	}
}

func TestLoadAppliesEnvOverDefault(t *testing.T) {
	t.Setenv("KMS_PORT", "1700")
	t.Setenv("KMS_LOGLEVEL", "debug")

	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1700 {
		t.Fatalf("Port = %d, want 1700", cfg.Port)
	}
	if cfg.LogLevel != LevelDebug {
		t.Fatalf("LogLevel = %q, want DEBUG", cfg.LogLevel)
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("KMS_PORT", "1700")
	flagPort := 1800

	cfg, err := Load(Overrides{Port: &flagPort})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1800 {
		t.Fatalf("Port = %d, want 1800 (flag should win over env)", cfg.Port)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	badPort := 70000
	if _, err := Load(Overrides{Port: &badPort}); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestParseHWIDRandomProducesEightBytes(t *testing.T) {
	hwid, err := parseHWID("RANDOM")
	if err != nil {
		t.Fatalf("parseHWID(RANDOM): %v", err)
	}
	if hwid == ([8]byte{}) {
		t.Fatalf("RANDOM hwid must not be all-zero (astronomically unlikely, treat as failure)")
	}
}

func TestParseHWIDHex(t *testing.T) {
	hwid, err := parseHWID("364F463A8863D35F")
	if err != nil {
		t.Fatalf("parseHWID: %v", err)
	}
	want := [8]byte{0x36, 0x4F, 0x46, 0x3A, 0x88, 0x63, 0xD3, 0x5F}
	if hwid != want {
		t.Fatalf("hwid = %x, want %x", hwid, want)
	}
}

func TestParseHWIDRejectsWrongLength(t *testing.T) {
	if _, err := parseHWID("AABB"); err == nil {
		t.Fatalf("expected error for short hwid")
	}
}
