package access_test

import (
	"testing"

	"safeline/internal/access"
	"safeline/internal/domain"
)

func permitBy(creatorID, org, grade, status string) domain.Permit {
	return domain.Permit{
		ID:             "p-1",
		CreatedBy:      creatorID,
		CreatorOrgType: org,
		CreatorGrade:   grade,
		Status:         status,
	}
}

func TestVerifyRules(t *testing.T) {
	tables := access.DefaultTables()
	cases := []struct {
		name         string
		actorOrg     access.OrgType
		actorGrade   access.Grade
		creatorOrg   string
		creatorGrade string
		want         bool
	}{
		{"epc C verifies any contractor", access.OrgEPC, access.GradeC, "contractor", "A", true},
		{"epc C verifies contractor C", access.OrgEPC, access.GradeC, "contractor", "C", true},
		{"epc B verifies epc C", access.OrgEPC, access.GradeB, "epc", "C", true},
		{"epc A verifies epc B", access.OrgEPC, access.GradeA, "epc", "B", true},
		{"epc A does not verify epc C", access.OrgEPC, access.GradeA, "epc", "C", false},
		{"epc B does not verify contractor", access.OrgEPC, access.GradeB, "contractor", "B", false},
		{"client B verifies client C", access.OrgClient, access.GradeB, "client", "C", true},
		{"client A verifies client B", access.OrgClient, access.GradeA, "client", "B", true},
		{"client C verifies nothing", access.OrgClient, access.GradeC, "contractor", "C", false},
		{"contractor never verifies", access.OrgContractor, access.GradeA, "contractor", "C", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := access.Actor{ID: "actor", Org: tc.actorOrg, Grade: tc.actorGrade}
			p := permitBy("creator", tc.creatorOrg, tc.creatorGrade, "submitted")
			if got := tables.CanVerify(actor, p); got != tc.want {
				t.Fatalf("CanVerify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApproveRules(t *testing.T) {
	tables := access.DefaultTables()
	cases := []struct {
		name         string
		actorOrg     access.OrgType
		actorGrade   access.Grade
		creatorOrg   string
		creatorGrade string
		want         bool
	}{
		{"client C approves any contractor", access.OrgClient, access.GradeC, "contractor", "B", true},
		{"client B approves any epc", access.OrgClient, access.GradeB, "epc", "A", true},
		{"client B approves client C", access.OrgClient, access.GradeB, "client", "C", true},
		{"client A approves client B", access.OrgClient, access.GradeA, "client", "B", true},
		{"client C does not approve epc", access.OrgClient, access.GradeC, "epc", "C", false},
		{"epc never approves", access.OrgEPC, access.GradeA, "contractor", "C", false},
		{"contractor never approves", access.OrgContractor, access.GradeA, "contractor", "C", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor := access.Actor{ID: "actor", Org: tc.actorOrg, Grade: tc.actorGrade}
			p := permitBy("creator", tc.creatorOrg, tc.creatorGrade, "pending_approval")
			if got := tables.CanApprove(actor, p); got != tc.want {
				t.Fatalf("CanApprove = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelfSignOffDenied(t *testing.T) {
	tables := access.DefaultTables()
	// The actor's org/grade would otherwise qualify on both tables.
	actor := access.Actor{ID: "creator", Org: access.OrgClient, Grade: access.GradeB}
	p := permitBy("creator", "client", "C", "submitted")
	if tables.CanVerify(actor, p) {
		t.Fatalf("creator must not verify own permit")
	}
	p.Status = "pending_approval"
	if tables.CanApprove(actor, p) {
		t.Fatalf("creator must not approve own permit")
	}
}

func TestSignOffRequiresStage(t *testing.T) {
	tables := access.DefaultTables()
	verifier := access.Actor{ID: "v", Org: access.OrgEPC, Grade: access.GradeC}
	approver := access.Actor{ID: "a", Org: access.OrgClient, Grade: access.GradeC}
	for _, status := range []string{"draft", "pending_approval", "approved", "active", "closed"} {
		if tables.CanVerify(verifier, permitBy("creator", "contractor", "C", status)) {
			t.Fatalf("verify allowed at status %s", status)
		}
	}
	for _, status := range []string{"draft", "submitted", "under_review", "approved", "active"} {
		if tables.CanApprove(approver, permitBy("creator", "contractor", "C", status)) {
			t.Fatalf("approve allowed at status %s", status)
		}
	}
}

func TestRuleTableCreatorGradeAny(t *testing.T) {
	table := access.RuleTable{
		{Actor: access.OrgGrade{Org: access.OrgEPC, Grade: access.GradeB}, Creator: access.OrgGrade{Org: access.OrgContractor, Grade: access.GradeAny}},
	}
	actor := access.OrgGrade{Org: access.OrgEPC, Grade: access.GradeB}
	for _, g := range []access.Grade{access.GradeA, access.GradeB, access.GradeC} {
		if !table.Allows(actor, access.OrgGrade{Org: access.OrgContractor, Grade: g}) {
			t.Fatalf("wildcard creator grade should match grade %s", g)
		}
	}
	if table.Allows(actor, access.OrgGrade{Org: access.OrgEPC, Grade: access.GradeC}) {
		t.Fatalf("rule must not match a different creator org")
	}
}

func TestParseOrgTypeAndGrade(t *testing.T) {
	if _, err := access.ParseOrgType("epc"); err != nil {
		t.Fatalf("parse org: %v", err)
	}
	if _, err := access.ParseOrgType("vendor"); err == nil {
		t.Fatalf("expected error for unknown org type")
	}
	if _, err := access.ParseGrade("B"); err != nil {
		t.Fatalf("parse grade: %v", err)
	}
	if _, err := access.ParseGrade("D"); err == nil {
		t.Fatalf("expected error for unknown grade")
	}
}
