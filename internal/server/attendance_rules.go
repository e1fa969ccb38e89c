package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/karibu-labs/darasa/pkg/httperr"
	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

const (
	ruleDecisionAllow = "allow"
	ruleDecisionDeny  = "deny"

	reasonNoRuleMatched = "no_rule_matched"
	reasonRuleAllowed   = "rule_allowed"
)

// AttendanceRule is a tenant-defined policy over attendance writes. The
// eligibility expression decides whether the rule applies to the evaluation
// context; among applicable rules the highest priority wins, ties broken by
// the later effective date. The winner's decision expression yields
// "allow" or "deny".
type AttendanceRule struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"org_id"`
	Name            string    `json:"name"`
	Priority        int       `json:"priority"`
	EffectiveDate   string    `json:"effective_date"`
	EndDate         string    `json:"end_date,omitempty"`
	EligibilityExpr string    `json:"eligibility_expr"`
	DecisionExpr    string    `json:"decision_expr"`
	ReasonCode      string    `json:"reason_code"`
	CreatedAt       time.Time `json:"created_at"`
}

type AttendanceRuleStore interface {
	Create(ctx context.Context, rule AttendanceRule) (AttendanceRule, error)
	// ListEffective returns the rules whose effective window contains asOf.
	ListEffective(ctx context.Context, orgID string, asOf string) ([]AttendanceRule, error)
	List(ctx context.Context, orgID string) ([]AttendanceRule, error)
	Delete(ctx context.Context, orgID string, id string) (bool, error)
}

var newRulesCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
}

var ruleEligibilityProgramCache sync.Map
var ruleDecisionProgramCache sync.Map

// ruleEvaluation is the input vocabulary exposed to CEL expressions as
// ctx["..."].
type ruleEvaluation struct {
	OrgID     string
	ActorID   string
	ActorRole string
	StudentID string
	Status    string
	Date      string
}

func (e ruleEvaluation) celContextMap() map[string]string {
	return map[string]string{
		"org_id":     e.OrgID,
		"actor_id":   e.ActorID,
		"actor_role": e.ActorRole,
		"student_id": e.StudentID,
		"status":     e.Status,
		"date":       e.Date,
	}
}

type ruleOutcome struct {
	Decision           string
	ReasonCode         string
	Selected           *AttendanceRule
	CandidateCount     int
	EligibilityMatched int
}

// evaluateAttendanceRules runs every candidate's eligibility expression,
// picks the winner, and evaluates its decision. With no candidates at all
// the write is allowed; rules only restrict.
func evaluateAttendanceRules(eval ruleEvaluation, rules []AttendanceRule) (ruleOutcome, error) {
	out := ruleOutcome{CandidateCount: len(rules)}
	if len(rules) == 0 {
		out.Decision = ruleDecisionAllow
		out.ReasonCode = reasonNoRuleMatched
		return out, nil
	}

	ctxMap := eval.celContextMap()
	var selected *AttendanceRule
	for i := range rules {
		rule := rules[i]
		eligible, err := evalRuleBoolExpr(rule.EligibilityExpr, ctxMap)
		if err != nil {
			return ruleOutcome{}, fmt.Errorf("rule %s eligibility: %w", rule.ID, err)
		}
		if !eligible {
			continue
		}
		out.EligibilityMatched++
		if selected == nil || rule.Priority > selected.Priority ||
			(rule.Priority == selected.Priority && rule.EffectiveDate > selected.EffectiveDate) {
			picked := rule
			selected = &picked
		}
	}
	if selected == nil {
		out.Decision = ruleDecisionAllow
		out.ReasonCode = reasonNoRuleMatched
		return out, nil
	}

	decision, err := evalRuleStringExpr(selected.DecisionExpr, ctxMap)
	if err != nil {
		return ruleOutcome{}, fmt.Errorf("rule %s decision: %w", selected.ID, err)
	}
	switch decision {
	case ruleDecisionAllow, ruleDecisionDeny:
	default:
		decision = ruleDecisionDeny
	}

	reasonCode := strings.TrimSpace(selected.ReasonCode)
	if reasonCode == "" {
		reasonCode = reasonRuleAllowed
	}
	out.Decision = decision
	out.ReasonCode = reasonCode
	out.Selected = selected
	return out, nil
}

func evalRuleBoolExpr(expr string, ctxMap map[string]string) (bool, error) {
	program, err := loadOrCompileRuleProgram(expr, cel.BoolType, &ruleEligibilityProgramCache)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("expression did not yield a bool")
	}
	return v, nil
}

func evalRuleStringExpr(expr string, ctxMap map[string]string) (string, error) {
	program, err := loadOrCompileRuleProgram(expr, cel.StringType, &ruleDecisionProgramCache)
	if err != nil {
		return "", err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return "", err
	}
	v, ok := out.Value().(string)
	if !ok {
		return "", errors.New("expression did not yield a string")
	}
	return strings.ToLower(strings.TrimSpace(v)), nil
}

func loadOrCompileRuleProgram(expr string, outputType *cel.Type, cache *sync.Map) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRulesCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != outputType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	cache.Store(expr, program)
	return program, nil
}

// compileRuleExprs rejects a rule whose expressions do not compile, so bad
// rules fail at creation rather than on every attendance write.
func compileRuleExprs(rule AttendanceRule) error {
	if _, err := loadOrCompileRuleProgram(rule.EligibilityExpr, cel.BoolType, &ruleEligibilityProgramCache); err != nil {
		return httperr.NewBadRequest("eligibility_expr: " + err.Error())
	}
	if _, err := loadOrCompileRuleProgram(rule.DecisionExpr, cel.StringType, &ruleDecisionProgramCache); err != nil {
		return httperr.NewBadRequest("decision_expr: " + err.Error())
	}
	return nil
}

type attendanceRulePGStore struct {
	pool pgBeginner
}

func newAttendanceRulePGStore(pool pgBeginner) AttendanceRuleStore {
	return &attendanceRulePGStore{pool: pool}
}

func (s *attendanceRulePGStore) Create(ctx context.Context, rule AttendanceRule) (AttendanceRule, error) {
	if err := compileRuleExprs(rule); err != nil {
		return AttendanceRule{}, err
	}
	id, err := uuidv7.NewString()
	if err != nil {
		return AttendanceRule{}, err
	}
	rule.ID = id

	tx, err := beginOrgTx(ctx, s.pool, rule.OrgID)
	if err != nil {
		return AttendanceRule{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var endDate any
	if rule.EndDate != "" {
		endDate = rule.EndDate
	}
	err = tx.QueryRow(ctx, `
INSERT INTO school.attendance_rules
  (id, org_id, name, priority, effective_date, end_date, eligibility_expr, decision_expr, reason_code)
VALUES ($1::uuid, $2::uuid, $3, $4, $5::date, $6::date, $7, $8, $9)
RETURNING created_at
`, rule.ID, rule.OrgID, rule.Name, rule.Priority, rule.EffectiveDate, endDate,
		rule.EligibilityExpr, rule.DecisionExpr, rule.ReasonCode).Scan(&rule.CreatedAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return AttendanceRule{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return AttendanceRule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return AttendanceRule{}, err
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	return rule, nil
}

func (s *attendanceRulePGStore) ListEffective(ctx context.Context, orgID string, asOf string) ([]AttendanceRule, error) {
	return s.list(ctx, orgID, `
SELECT id::text, org_id::text, name, priority, effective_date::text, COALESCE(end_date::text, ''),
       eligibility_expr, decision_expr, reason_code, created_at
FROM school.attendance_rules
WHERE org_id = $1::uuid AND effective_date <= $2::date AND (end_date IS NULL OR end_date >= $2::date)
ORDER BY priority DESC, effective_date DESC, id
`, orgID, asOf)
}

func (s *attendanceRulePGStore) List(ctx context.Context, orgID string) ([]AttendanceRule, error) {
	return s.list(ctx, orgID, `
SELECT id::text, org_id::text, name, priority, effective_date::text, COALESCE(end_date::text, ''),
       eligibility_expr, decision_expr, reason_code, created_at
FROM school.attendance_rules
WHERE org_id = $1::uuid
ORDER BY priority DESC, effective_date DESC, id
`, orgID)
}

func (s *attendanceRulePGStore) list(ctx context.Context, orgID string, sql string, args ...any) ([]AttendanceRule, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRule
	for rows.Next() {
		var rule AttendanceRule
		if err := rows.Scan(&rule.ID, &rule.OrgID, &rule.Name, &rule.Priority, &rule.EffectiveDate,
			&rule.EndDate, &rule.EligibilityExpr, &rule.DecisionExpr, &rule.ReasonCode, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.CreatedAt = rule.CreatedAt.UTC()
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *attendanceRulePGStore) Delete(ctx context.Context, orgID string, id string) (bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM school.attendance_rules WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id)
	if err != nil {
		if isPgInvalidInput(err) {
			return false, nil
		}
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type memoryAttendanceRuleStore struct {
	mu    sync.Mutex
	rules map[string]AttendanceRule
}

func newMemoryAttendanceRuleStore() *memoryAttendanceRuleStore {
	return &memoryAttendanceRuleStore{rules: map[string]AttendanceRule{}}
}

func (s *memoryAttendanceRuleStore) Create(_ context.Context, rule AttendanceRule) (AttendanceRule, error) {
	if err := compileRuleExprs(rule); err != nil {
		return AttendanceRule{}, err
	}
	id, err := uuidv7.NewString()
	if err != nil {
		return AttendanceRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.ID = id
	rule.CreatedAt = time.Now().UTC()
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *memoryAttendanceRuleStore) ListEffective(_ context.Context, orgID string, asOf string) ([]AttendanceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AttendanceRule
	for _, rule := range s.rules {
		if rule.OrgID != orgID {
			continue
		}
		if rule.EffectiveDate > asOf {
			continue
		}
		if rule.EndDate != "" && rule.EndDate < asOf {
			continue
		}
		out = append(out, rule)
	}
	sortRules(out)
	return out, nil
}

func (s *memoryAttendanceRuleStore) List(_ context.Context, orgID string) ([]AttendanceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AttendanceRule
	for _, rule := range s.rules {
		if rule.OrgID == orgID {
			out = append(out, rule)
		}
	}
	sortRules(out)
	return out, nil
}

func (s *memoryAttendanceRuleStore) Delete(_ context.Context, orgID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.OrgID != orgID {
		return false, nil
	}
	delete(s.rules, id)
	return true, nil
}

func sortRules(rules []AttendanceRule) {
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.EffectiveDate != b.EffectiveDate {
			return a.EffectiveDate > b.EffectiveDate
		}
		return a.ID < b.ID
	})
}
