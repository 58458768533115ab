package access

import (
	"fmt"

	"safeline/internal/domain"
)

// OrgType classifies the organization a user belongs to.
type OrgType string

const (
	OrgContractor OrgType = "contractor"
	OrgEPC        OrgType = "epc"
	OrgClient     OrgType = "client"
)

// Grade is the seniority tier within an organization type.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	// GradeAny matches any grade when used on the creator side of a rule.
	GradeAny Grade = ""
)

func ParseOrgType(s string) (OrgType, error) {
	switch OrgType(s) {
	case OrgContractor, OrgEPC, OrgClient:
		return OrgType(s), nil
	}
	return "", fmt.Errorf("unknown org type %q", s)
}

func ParseGrade(s string) (Grade, error) {
	switch Grade(s) {
	case GradeA, GradeB, GradeC:
		return Grade(s), nil
	}
	return "", fmt.Errorf("unknown grade %q", s)
}

// Actor is the acting user's identity passed explicitly into every predicate.
type Actor struct {
	ID    string
	Org   OrgType
	Grade Grade
}

func ActorFromUser(u domain.User) Actor {
	return Actor{ID: u.ID, Org: OrgType(u.OrgType), Grade: Grade(u.Grade)}
}

// OrgGrade is one side of a dominance rule.
type OrgGrade struct {
	Org   OrgType
	Grade Grade
}

// Rule states that an actor with Actor's org+grade may sign off work created
// by someone with Creator's org+grade. A creator grade of GradeAny matches
// every grade of that org.
type Rule struct {
	Actor   OrgGrade
	Creator OrgGrade
}

// RuleTable is an enumerated dominance relation, not a computed order.
type RuleTable []Rule

func (t RuleTable) Allows(actor, creator OrgGrade) bool {
	for _, r := range t {
		if r.Actor.Org != actor.Org || r.Actor.Grade != actor.Grade {
			continue
		}
		if r.Creator.Org != creator.Org {
			continue
		}
		if r.Creator.Grade == GradeAny || r.Creator.Grade == creator.Grade {
			return true
		}
	}
	return false
}

// DefaultVerifyRules is the built-in verifier dominance table: EPC verifies
// contractor work, and each grade verifies the grade below it within its own
// organization.
var DefaultVerifyRules = RuleTable{
	{Actor: OrgGrade{OrgEPC, GradeC}, Creator: OrgGrade{OrgContractor, GradeAny}},
	{Actor: OrgGrade{OrgEPC, GradeB}, Creator: OrgGrade{OrgEPC, GradeC}},
	{Actor: OrgGrade{OrgEPC, GradeA}, Creator: OrgGrade{OrgEPC, GradeB}},
	{Actor: OrgGrade{OrgClient, GradeB}, Creator: OrgGrade{OrgClient, GradeC}},
	{Actor: OrgGrade{OrgClient, GradeA}, Creator: OrgGrade{OrgClient, GradeB}},
}

// DefaultApproveRules is the built-in approver dominance table: the client
// side approves contractor and EPC work after EPC verification.
var DefaultApproveRules = RuleTable{
	{Actor: OrgGrade{OrgClient, GradeC}, Creator: OrgGrade{OrgContractor, GradeAny}},
	{Actor: OrgGrade{OrgClient, GradeB}, Creator: OrgGrade{OrgEPC, GradeAny}},
	{Actor: OrgGrade{OrgClient, GradeB}, Creator: OrgGrade{OrgClient, GradeC}},
	{Actor: OrgGrade{OrgClient, GradeA}, Creator: OrgGrade{OrgClient, GradeB}},
}

// Tables bundles both rule tables so server enforcement and SDK display
// logic share one declarative source.
type Tables struct {
	Verify  RuleTable
	Approve RuleTable
}

func DefaultTables() Tables {
	return Tables{Verify: DefaultVerifyRules, Approve: DefaultApproveRules}
}

func creatorOrgGrade(p domain.Permit) OrgGrade {
	return OrgGrade{Org: OrgType(p.CreatorOrgType), Grade: Grade(p.CreatorGrade)}
}

// CanVerify reports whether actor may verify the permit. Creators can never
// verify their own permits, and a permit is only verifiable while awaiting
// verification.
func (t Tables) CanVerify(actor Actor, p domain.Permit) bool {
	if actor.ID == p.CreatedBy {
		return false
	}
	if p.Status != "submitted" && p.Status != "under_review" {
		return false
	}
	return t.Verify.Allows(OrgGrade{actor.Org, actor.Grade}, creatorOrgGrade(p))
}

// CanApprove reports whether actor may approve or reject the permit at the
// approval stage. Approval only applies after verification completed.
func (t Tables) CanApprove(actor Actor, p domain.Permit) bool {
	if actor.ID == p.CreatedBy {
		return false
	}
	if p.Status != "pending_approval" {
		return false
	}
	return t.Approve.Allows(OrgGrade{actor.Org, actor.Grade}, creatorOrgGrade(p))
}
