package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"safeline/internal/access"
	"safeline/internal/config"
	"safeline/internal/domain"
)

func TestGenerateDefaultParsesAndValidates(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Permits.NumberPrefix != "PTW" {
		t.Fatalf("number prefix %q", cfg.Permits.NumberPrefix)
	}
	if cfg.Permits.DefaultValidHours != 8 || cfg.Permits.MaxExtensionHours != 72 {
		t.Fatalf("unexpected permit defaults %+v", cfg.Permits)
	}
	if !cfg.Notifications.Enabled {
		t.Fatalf("notifications should default to enabled")
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing prefix",
			yaml:    "permits:\n  default_valid_hours: 8\n",
			wantErr: "number_prefix",
		},
		{
			name:    "non-positive valid hours",
			yaml:    "permits:\n  number_prefix: PTW\n  default_valid_hours: 0\n",
			wantErr: "default_valid_hours",
		},
		{
			name: "unknown org in verify rule",
			yaml: "permits:\n  number_prefix: PTW\n  default_valid_hours: 8\n" +
				"eligibility:\n  verify:\n    - {actor_org: vendor, actor_grade: C, creator_org: contractor}\n",
			wantErr: "eligibility.verify[0]",
		},
		{
			name: "unknown grade in approve rule",
			yaml: "permits:\n  number_prefix: PTW\n  default_valid_hours: 8\n" +
				"eligibility:\n  approve:\n    - {actor_org: client, actor_grade: D, creator_org: contractor}\n",
			wantErr: "eligibility.approve[0]",
		},
		{
			name: "webhook without url",
			yaml: "permits:\n  number_prefix: PTW\n  default_valid_hours: 8\n" +
				"webhooks:\n  - events: [permit.approved]\n",
			wantErr: "webhooks[0].url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestAccessTablesOverride(t *testing.T) {
	yaml := "permits:\n  number_prefix: PTW\n  default_valid_hours: 8\n" +
		"eligibility:\n  verify:\n    - {actor_org: epc, actor_grade: A, creator_org: contractor}\n"
	cfg, err := config.FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tables := cfg.AccessTables()

	p := domain.Permit{CreatedBy: "creator", CreatorOrgType: "contractor", CreatorGrade: "C", Status: "submitted"}
	epcA := access.Actor{ID: "a", Org: access.OrgEPC, Grade: access.GradeA}
	epcC := access.Actor{ID: "c", Org: access.OrgEPC, Grade: access.GradeC}
	if !tables.CanVerify(epcA, p) {
		t.Fatalf("configured rule should allow epc A")
	}
	// The built-in epc C rule is replaced, not merged.
	if tables.CanVerify(epcC, p) {
		t.Fatalf("default verify rules should not survive an override")
	}

	// Approve was left empty, so the built-in table still applies.
	p.Status = "pending_approval"
	clientC := access.Actor{ID: "cl", Org: access.OrgClient, Grade: access.GradeC}
	if !tables.CanApprove(clientC, p) {
		t.Fatalf("approve should fall back to the built-in table")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "sfl config init") {
		t.Fatalf("expected missing-config hint, got %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Permits.NumberPrefix != "PTW" {
		t.Fatalf("optional load should fall back to defaults, got %+v", cfg.Permits)
	}
}

func TestLoadFromWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "permits:\n  number_prefix: HWP\n  default_valid_hours: 4\n"
	if err := os.WriteFile(filepath.Join(dir, "safeline.yml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Permits.NumberPrefix != "HWP" || cfg.Permits.DefaultValidHours != 4 {
		t.Fatalf("unexpected config %+v", cfg.Permits)
	}
}
