/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for demos. Each scenario creates roles, KPIs, formulas, users with
  actuals, and positions for the forecast.

AVAILABLE SCENARIOS (scenarios.yaml):
  sales-team:            Tiered, inverse and linear formulas, weighted and equal split
  fallback-only:         No formulas, ratio fallback on every KPI
  weights-misconfigured: Weights summing to 90%

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create roles and KPIs
 3. Store each KPI formula from its JSON preset
 4. Create users and record actuals
 5. Create positions

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "sales-team"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - compensation/presets.go: Preset formulas
  - scenarios.yaml: Scenario data
*/
package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/store/sqlite"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

//go:embed scenarios.yaml
var scenariosYAML []byte

type scenarioFile struct {
	Scenarios []scenarioDef `yaml:"scenarios"`
}

type scenarioDef struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Roles       []roleDef     `yaml:"roles"`
	Users       []userDef     `yaml:"users"`
	Positions   []positionDef `yaml:"positions"`
}

type roleDef struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	BaseSalary      string   `yaml:"base_salary"`
	BonusPercentage string   `yaml:"bonus_percentage"`
	KPIs            []kpiDef `yaml:"kpis"`
}

type kpiDef struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Unit        string     `yaml:"unit"`
	Target      string     `yaml:"target"`
	Weight      string     `yaml:"weight"`
	IsInverse   bool       `yaml:"is_inverse"`
	Formula     *presetDef `yaml:"formula"`
}

type presetDef struct {
	Type    string `yaml:"type"`
	Stretch string `yaml:"stretch"`
}

type userDef struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Email   string            `yaml:"email"`
	RoleID  string            `yaml:"role_id"`
	Actuals map[string]string `yaml:"actuals"`
}

type positionDef struct {
	ID        string `yaml:"id"`
	RoleID    string `yaml:"role_id"`
	Title     string `yaml:"title"`
	Headcount int    `yaml:"headcount"`
}

var scenarioDefs = mustParseScenarios(scenariosYAML)

func mustParseScenarios(raw []byte) []scenarioDef {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		panic(fmt.Sprintf("api: scenarios.yaml: %v", err))
	}
	return f.Scenarios
}

func findScenario(id string) (scenarioDef, bool) {
	return lo.Find(scenarioDefs, func(s scenarioDef) bool { return s.ID == id })
}

func (s scenarioDef) dto() ScenarioDTO {
	return ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lo.Map(scenarioDefs, func(s scenarioDef, _ int) ScenarioDTO { return s.dto() }))
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.dto())
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.invalidateFormulas()
	h.currentScenario = ""
	return nil
}

// LoadScenarioByID resets the database and loads the scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	def, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	if err := h.reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	err := h.applyScenario(ctx, def)
	// Reads during seeding may have cached a half-loaded role.
	h.invalidateFormulas()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	h.Logger.Info("scenario loaded",
		zap.String("scenario", id),
		zap.Int("roles", len(def.Roles)),
		zap.Int("users", len(def.Users)))
	return nil
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) applyScenario(ctx context.Context, def scenarioDef) error {
	for _, rd := range def.Roles {
		if err := h.applyRole(ctx, rd); err != nil {
			return fmt.Errorf("role %s: %w", rd.ID, err)
		}
	}

	for _, ud := range def.Users {
		user := sqlite.User{ID: ud.ID, Name: ud.Name, Email: ud.Email, RoleID: ud.RoleID}
		if err := h.Store.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("user %s: %w", ud.ID, err)
		}
		if len(ud.Actuals) == 0 {
			continue
		}

		actuals := make(compensation.Actuals, len(ud.Actuals))
		for kpiID, v := range ud.Actuals {
			d, err := parseScenarioDecimal("actual "+kpiID, v)
			if err != nil {
				return fmt.Errorf("user %s: %w", ud.ID, err)
			}
			actuals[kpiID] = d
		}
		if err := h.Store.SaveActuals(ctx, ud.ID, actuals); err != nil {
			return fmt.Errorf("user %s actuals: %w", ud.ID, err)
		}
	}

	for _, pd := range def.Positions {
		pos := compensation.Position{ID: pd.ID, RoleID: pd.RoleID, Title: pd.Title, Headcount: pd.Headcount}
		if err := h.Store.SavePosition(ctx, pos); err != nil {
			return fmt.Errorf("position %s: %w", pd.ID, err)
		}
	}
	return nil
}

func (h *Handler) applyRole(ctx context.Context, rd roleDef) error {
	salary, err := parseScenarioDecimal("base_salary", rd.BaseSalary)
	if err != nil {
		return err
	}
	pct, err := parseScenarioDecimal("bonus_percentage", rd.BonusPercentage)
	if err != nil {
		return err
	}

	role := compensation.Role{ID: rd.ID, Name: rd.Name, BaseSalary: salary, BonusPercentage: pct}
	if err := h.Store.SaveRole(ctx, role); err != nil {
		return err
	}

	for _, kd := range rd.KPIs {
		target, err := parseScenarioDecimal("target", kd.Target)
		if err != nil {
			return fmt.Errorf("kpi %s: %w", kd.ID, err)
		}
		weight, err := parseScenarioDecimal("weight", kd.Weight)
		if err != nil {
			return fmt.Errorf("kpi %s: %w", kd.ID, err)
		}

		kpi := compensation.KPI{
			ID:          kd.ID,
			RoleID:      rd.ID,
			Name:        kd.Name,
			Description: kd.Description,
			Unit:        kd.Unit,
			Target:      target,
			IsInverse:   kd.IsInverse,
			Weight:      weight,
		}
		if err := h.Store.SaveKPI(ctx, kpi); err != nil {
			return fmt.Errorf("kpi %s: %w", kd.ID, err)
		}

		if kd.Formula == nil {
			continue
		}
		stretch := target
		if kd.Formula.Stretch != "" {
			if stretch, err = parseScenarioDecimal("stretch", kd.Formula.Stretch); err != nil {
				return fmt.Errorf("kpi %s: %w", kd.ID, err)
			}
		}

		raw := compensation.DefaultFormulaJSONFor(bonus.FormulaType(kd.Formula.Type), target, stretch)
		if _, err := h.Store.SaveFormula(ctx, rd.ID, kd.ID, raw); err != nil {
			return fmt.Errorf("kpi %s formula: %w", kd.ID, err)
		}
	}
	return nil
}

// parseScenarioDecimal reads a quoted decimal; empty means zero.
func parseScenarioDecimal(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q: %w", field, v, err)
	}
	return d, nil
}
