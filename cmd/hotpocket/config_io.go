package main

import (
	"encoding/json"
	"os"

	"github.com/hotpocket/hpcore/hpconfig"
	"github.com/hotpocket/hpcore/hperrors"
)

// cfgFile is hp.cfg's on-disk shape:
// the non-patch Static block plus the patch-mutable subset's initial
// value, matching what hpconfig.Load unmarshals.
type cfgFile struct {
	Static hpconfig.Static `json:"static"`
	Patch  hpconfig.Patch  `json:"patch"`
}

func writeConfigFile(dir string, cfg hpconfig.Config) error {
	b, err := json.MarshalIndent(cfgFile{Static: cfg.Static, Patch: cfg.Patch}, "", "  ")
	if err != nil {
		return hperrors.Fatal("config_marshal_failed", err)
	}
	if err := os.WriteFile(hpCfgPath(dir), b, 0o644); err != nil {
		return hperrors.Fatal("config_write_failed", err)
	}
	return nil
}

// writePatchFile writes patch.cfg's body directly as the Patch fields.
func writePatchFile(dir string, patch hpconfig.Patch) error {
	b, err := json.MarshalIndent(patch, "", "  ")
	if err != nil {
		return hperrors.Fatal("patch_marshal_failed", err)
	}
	if err := os.WriteFile(patchCfgPath(dir), b, 0o644); err != nil {
		return hperrors.Fatal("patch_write_failed", err)
	}
	return nil
}
