/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMBERS:
  Money and percentages are decimal.Decimal. They are written as JSON
  strings ("7500.00") and accepted as either strings or numbers.

VALIDATION:
  Request types carry go-playground/validator tags and a Validate() method.
  Decimal ranges are checked by hand since the validator cannot compare
  decimal.Decimal values.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/formula.go: FormulaJSON type
*/
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/factory"
	"github.com/warp/kpi-bonus/store/sqlite"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// ROLES & KPIS
// =============================================================================

// RoleDTO represents a role in API responses.
type RoleDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	BaseSalary      decimal.Decimal `json:"base_salary"`
	BonusPercentage decimal.Decimal `json:"bonus_percentage"`
	BonusPool       decimal.Decimal `json:"bonus_pool"`
}

func toRoleDTO(r compensation.Role) RoleDTO {
	return RoleDTO{
		ID:              r.ID,
		Name:            r.Name,
		BaseSalary:      r.BaseSalary,
		BonusPercentage: r.BonusPercentage,
		BonusPool:       r.BonusPool(),
	}
}

// SaveRoleRequest is the body for creating or updating a role.
type SaveRoleRequest struct {
	ID              string          `json:"id" validate:"omitempty,max=64"`
	Name            string          `json:"name" validate:"required,max=200"`
	BaseSalary      decimal.Decimal `json:"base_salary"`
	BonusPercentage decimal.Decimal `json:"bonus_percentage"`
}

func (r *SaveRoleRequest) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return err
	}
	if r.BaseSalary.IsNegative() {
		return fmt.Errorf("base_salary must not be negative")
	}
	return percentInRange("bonus_percentage", r.BonusPercentage)
}

// KPIDTO represents a KPI in API responses.
type KPIDTO struct {
	ID          string          `json:"id"`
	RoleID      string          `json:"role_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Target      decimal.Decimal `json:"target"`
	IsInverse   bool            `json:"is_inverse"`
	Weight      decimal.Decimal `json:"weight"`
}

func toKPIDTO(k compensation.KPI) KPIDTO {
	return KPIDTO{
		ID:          k.ID,
		RoleID:      k.RoleID,
		Name:        k.Name,
		Description: k.Description,
		Unit:        k.Unit,
		Target:      k.Target,
		IsInverse:   k.IsInverse,
		Weight:      k.Weight,
	}
}

// RoleKPIsDTO lists a role's KPIs with a weight sanity check.
type RoleKPIsDTO struct {
	RoleID      string          `json:"role_id"`
	KPIs        []KPIDTO        `json:"kpis"`
	TotalWeight decimal.Decimal `json:"total_weight"`
	Warning     string          `json:"warning,omitempty"`
}

// SaveKPIRequest is the body for creating or updating a KPI.
type SaveKPIRequest struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Unit        string          `json:"unit" validate:"max=32"`
	Target      decimal.Decimal `json:"target"`
	IsInverse   bool            `json:"is_inverse"`
	Weight      decimal.Decimal `json:"weight"`
}

func (r *SaveKPIRequest) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return err
	}
	return percentInRange("weight", r.Weight)
}

// =============================================================================
// FORMULAS
// =============================================================================

// FormulaDTO is the stored formula of one (role, KPI).
type FormulaDTO struct {
	RoleID    string              `json:"role_id"`
	KPIID     string              `json:"kpi_id"`
	Version   int                 `json:"version"`
	UpdatedAt string              `json:"updated_at,omitempty"`
	Formula   factory.FormulaJSON `json:"formula"`
}

// =============================================================================
// USERS & DASHBOARD
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	RoleID    string `json:"role_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toUserDTO(u sqlite.User) UserDTO {
	dto := UserDTO{ID: u.ID, Name: u.Name, Email: u.Email, RoleID: u.RoleID}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// CreateUserRequest is the body for creating a user.
type CreateUserRequest struct {
	ID     string `json:"id" validate:"omitempty,max=64"`
	Name   string `json:"name" validate:"required,max=200"`
	Email  string `json:"email" validate:"omitempty,email"`
	RoleID string `json:"role_id" validate:"required"`
}

func (r *CreateUserRequest) Validate() error {
	return validator.New().Struct(r)
}

// ActualsRequest carries KPI ID to actual value. Used both to record
// actuals and as slider overrides for a simulation.
type ActualsRequest struct {
	Actuals map[string]decimal.Decimal `json:"actuals" validate:"required,min=1"`
}

func (r *ActualsRequest) Validate() error {
	return validator.New().Struct(r)
}

// ResultDTO is one engine result.
type ResultDTO struct {
	BonusPercentage decimal.Decimal `json:"bonus_percentage"`
	BonusAmount     decimal.Decimal `json:"bonus_amount"`
	Source          bonus.Source    `json:"source"`
	RuleIndex       int             `json:"rule_index"`
}

func toResultDTO(r bonus.Result) ResultDTO {
	return ResultDTO{
		BonusPercentage: r.BonusPercentage,
		BonusAmount:     r.BonusAmount.Round(2),
		Source:          r.Source,
		RuleIndex:       r.RuleIndex,
	}
}

// KPIProjectionDTO is one dashboard row.
type KPIProjectionDTO struct {
	KPIID           string          `json:"kpi_id"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit,omitempty"`
	Target          decimal.Decimal `json:"target"`
	IsInverse       bool            `json:"is_inverse"`
	Actual          decimal.Decimal `json:"actual"`
	ActualDefaulted bool            `json:"actual_defaulted"`
	AvailableBudget decimal.Decimal `json:"available_budget"`
	UsedFallback    bool            `json:"used_fallback"`
	Result          ResultDTO       `json:"result"`
}

// DashboardDTO is a user's projected bonus.
type DashboardDTO struct {
	UserID          string             `json:"user_id"`
	Role            RoleDTO            `json:"role"`
	KPIs            []KPIProjectionDTO `json:"kpis"`
	TotalBonus      decimal.Decimal    `json:"total_bonus"`
	TotalPercentage decimal.Decimal    `json:"total_percentage"`
	Simulated       bool               `json:"simulated"`
}

func toDashboardDTO(userID string, p compensation.Projection, simulated bool) DashboardDTO {
	dto := DashboardDTO{
		UserID:          userID,
		Role:            toRoleDTO(p.Role),
		KPIs:            make([]KPIProjectionDTO, len(p.KPIs)),
		TotalBonus:      p.TotalBonus.Round(2),
		TotalPercentage: p.TotalPercentage.Round(2),
		Simulated:       simulated,
	}
	for i, kp := range p.KPIs {
		dto.KPIs[i] = KPIProjectionDTO{
			KPIID:           kp.KPI.ID,
			Name:            kp.KPI.Name,
			Unit:            kp.KPI.Unit,
			Target:          kp.KPI.Target,
			IsInverse:       kp.KPI.IsInverse,
			Actual:          kp.Actual,
			ActualDefaulted: kp.ActualDefaulted,
			AvailableBudget: kp.AvailableBudget.Round(2),
			UsedFallback:    kp.UsedFallback,
			Result:          toResultDTO(kp.Result),
		}
	}
	return dto
}

// =============================================================================
// EVALUATE (formula editor preview)
// =============================================================================

// EvaluateRequest evaluates an unsaved formula. Without a formula the
// fallback ratio is used, which needs target and is_inverse.
type EvaluateRequest struct {
	Formula         json.RawMessage  `json:"formula"`
	Actual          decimal.Decimal  `json:"actual"`
	AvailableBudget decimal.Decimal  `json:"available_budget"`
	Target          *decimal.Decimal `json:"target"`
	IsInverse       bool             `json:"is_inverse"`
}

// HasFormula reports whether a formula was sent. "formula": null counts
// as absent.
func (r *EvaluateRequest) HasFormula() bool {
	return len(r.Formula) > 0 && string(r.Formula) != "null"
}

func (r *EvaluateRequest) Validate() error {
	if r.AvailableBudget.IsNegative() {
		return bonus.ErrNegativeBudget
	}
	if !r.HasFormula() && r.Target == nil {
		return fmt.Errorf("either formula or target is required")
	}
	return nil
}

// =============================================================================
// POSITIONS & FORECAST
// =============================================================================

// PositionDTO represents a position in API responses.
type PositionDTO struct {
	ID        string `json:"id"`
	RoleID    string `json:"role_id"`
	Title     string `json:"title"`
	Headcount int    `json:"headcount"`
}

// CreatePositionRequest is the body for creating a position.
type CreatePositionRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	RoleID    string `json:"role_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Headcount int    `json:"headcount" validate:"gte=0,lte=100000"`
}

func (r *CreatePositionRequest) Validate() error {
	return validator.New().Struct(r)
}

// ForecastRequest runs an ad-hoc forecast. A nil multiplier uses the
// configured default. Assumed actuals override KPI targets.
type ForecastRequest struct {
	Multiplier     *decimal.Decimal           `json:"multiplier"`
	AssumedActuals map[string]decimal.Decimal `json:"assumed_actuals"`
}

func (r *ForecastRequest) Validate() error {
	if r.Multiplier != nil && (r.Multiplier.IsNegative() || r.Multiplier.GreaterThan(hundred)) {
		return bonus.ErrInvalidMultiplier
	}
	return nil
}

// ForecastLineDTO is one position in a forecast.
type ForecastLineDTO struct {
	PositionID     string          `json:"position_id"`
	RoleID         string          `json:"role_id"`
	Headcount      int             `json:"headcount"`
	PerPersonBonus decimal.Decimal `json:"per_person_bonus"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// ForecastDTO is an aggregate payout forecast.
type ForecastDTO struct {
	RunID          string            `json:"run_id,omitempty"`
	Lines          []ForecastLineDTO `json:"lines"`
	Gross          decimal.Decimal   `json:"gross"`
	Multiplier     decimal.Decimal   `json:"multiplier"`
	TotalPayout    decimal.Decimal   `json:"total_payout"`
	TotalHeadcount int               `json:"total_headcount"`
}

func toForecastDTO(runID string, f bonus.ForecastResult) ForecastDTO {
	dto := ForecastDTO{
		RunID:          runID,
		Lines:          make([]ForecastLineDTO, len(f.Lines)),
		Gross:          f.Gross.Round(2),
		Multiplier:     f.Multiplier,
		TotalPayout:    f.TotalPayout.Round(2),
		TotalHeadcount: f.TotalHeadcount,
	}
	for i, l := range f.Lines {
		dto.Lines[i] = ForecastLineDTO{
			PositionID:     l.PositionID,
			RoleID:         l.RoleID,
			Headcount:      l.Headcount,
			PerPersonBonus: l.PerPersonBonus.Round(2),
			Subtotal:       l.Subtotal().Round(2),
		}
	}
	return dto
}

// ForecastRunDTO is one recorded forecast run.
type ForecastRunDTO struct {
	ID          string          `json:"id"`
	Trigger     string          `json:"trigger"`
	Status      string          `json:"status"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Gross       decimal.Decimal `json:"gross"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	Headcount   int             `json:"headcount"`
	Error       string          `json:"error,omitempty"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at"`
}

func toForecastRunDTO(r sqlite.ForecastRun) ForecastRunDTO {
	return ForecastRunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      r.Status,
		Multiplier:  r.Multiplier,
		Gross:       r.Gross,
		TotalPayout: r.TotalPayout,
		Headcount:   r.Headcount,
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
}

// ForecastScheduleDTO describes the scheduled forecast job.
type ForecastScheduleDTO struct {
	Enabled    bool             `json:"enabled"`
	Schedule   string           `json:"schedule,omitempty"`
	Multiplier *decimal.Decimal `json:"multiplier,omitempty"`
	NextRun    string           `json:"next_run,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body for loading a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

func (r *LoadScenarioRequest) Validate() error {
	return validator.New().Struct(r)
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func percentInRange(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%s must be between 0 and 100", field)
	}
	return nil
}
