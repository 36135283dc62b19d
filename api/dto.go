/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the reconcilers' Go types from the external API contract. Only canonical
  field names are accepted; legacy aliases are not read here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry go-playground/validator tags and are checked by
  Handler.decode before any handler logic runs. Money fields use
  shopspring/decimal and accept JSON numbers or strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
	"github.com/warp/storeops-engine/notify"
	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/shift"
)

// =============================================================================
// REQUESTS
// =============================================================================

// OpenShiftRequest starts a cashier's shift.
type OpenShiftRequest struct {
	ID           string          `json:"id" validate:"omitempty,max=64"`
	SiteID       string          `json:"site_id" validate:"required"`
	CashierID    string          `json:"cashier_id" validate:"required"`
	CashierName  string          `json:"cashier_name" validate:"required"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

// RecordSaleRequest posts a till sale against an open shift. Date defaults
// to now and status to Completed.
type RecordSaleRequest struct {
	ID     string          `json:"id" validate:"omitempty,max=64"`
	Date   *time.Time      `json:"date,omitempty"`
	Method string          `json:"method" validate:"required"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status,omitempty"`
}

// SetCountRequest stages the count for one denomination.
type SetCountRequest struct {
	Denomination decimal.Decimal `json:"denomination"`
	Count        int             `json:"count" validate:"gte=0"`
}

type SetReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type StartReceivingRequest struct {
	ReceivedBy string `json:"received_by" validate:"required"`
}

type ScanRequest struct {
	Code string `json:"code" validate:"required"`
}

// UpdateItemRequest edits one line. Fields left out are not touched; when
// both quantity and delta are sent, quantity is applied first.
type UpdateItemRequest struct {
	Quantity  *int    `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Delta     *int    `json:"delta,omitempty" validate:"omitempty,oneof=-1 1"`
	Condition *string `json:"condition,omitempty" validate:"omitempty,oneof=Good Damaged Short"`
	Notes     *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// RecordJobRequest reports a completed warehouse job. Accuracy and speed
// gain are percentages.
type RecordJobRequest struct {
	JobType       string          `json:"job_type" validate:"required,oneof=PICK PACK PUTAWAY TRANSFER DISPATCH"`
	Items         int             `json:"items" validate:"gte=0"`
	Accuracy      decimal.Decimal `json:"accuracy"`
	SpeedGain     decimal.Decimal `json:"speed_gain"`
	StreakDays    int             `json:"streak_days" validate:"gte=0"`
	FirstJobToday bool            `json:"first_job_today"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// SHIFTS
// =============================================================================

type ShiftDTO struct {
	ID                string          `json:"id"`
	SiteID            string          `json:"site_id"`
	CashierID         string          `json:"cashier_id"`
	CashierName       string          `json:"cashier_name"`
	Status            string          `json:"status"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           *time.Time      `json:"end_time,omitempty"`
	OpeningFloat      decimal.Decimal `json:"opening_float"`
	CashSales         decimal.Decimal `json:"cash_sales"`
	CardSales         decimal.Decimal `json:"card_sales"`
	MobileSales       decimal.Decimal `json:"mobile_sales"`
	ExpectedCash      decimal.Decimal `json:"expected_cash"`
	ActualCash        decimal.Decimal `json:"actual_cash"`
	Variance          decimal.Decimal `json:"variance"`
	Denominations     map[string]int  `json:"denominations,omitempty"`
	DiscrepancyReason string          `json:"discrepancy_reason,omitempty"`
}

type SalesSummaryDTO struct {
	Cash      decimal.Decimal `json:"cash"`
	Card      decimal.Decimal `json:"card"`
	Mobile    decimal.Decimal `json:"mobile"`
	Total     decimal.Decimal `json:"total"`
	Expected  decimal.Decimal `json:"expected_cash"`
	SaleCount int             `json:"sale_count"`
}

type CountDTO struct {
	Denomination decimal.Decimal `json:"denomination"`
	Count        int             `json:"count"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// CloseSessionDTO is the full state of a close wizard.
type CloseSessionDTO struct {
	SessionID   string          `json:"session_id"`
	ShiftID     string          `json:"shift_id"`
	Step        string          `json:"step"`
	Summary     SalesSummaryDTO `json:"summary"`
	Counts      []CountDTO      `json:"counts"`
	ActualCash  decimal.Decimal `json:"actual_cash"`
	Variance    decimal.Decimal `json:"variance"`
	Reason      string          `json:"reason,omitempty"`
	CanFinalize bool            `json:"can_finalize"`
	InFlight    bool            `json:"in_flight"`
	Cancelled   bool            `json:"cancelled"`
	Closed      *ShiftDTO       `json:"closed,omitempty"`
}

func toShiftDTO(r shift.Record) ShiftDTO {
	return ShiftDTO{
		ID:                r.ID,
		SiteID:            r.SiteID,
		CashierID:         r.CashierID,
		CashierName:       r.CashierName,
		Status:            string(r.Status),
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		OpeningFloat:      r.OpeningFloat,
		CashSales:         r.CashSales,
		CardSales:         r.CardSales,
		MobileSales:       r.MobileSales,
		ExpectedCash:      r.ExpectedCash,
		ActualCash:        r.ActualCash,
		Variance:          r.Variance,
		Denominations:     r.Denominations,
		DiscrepancyReason: r.DiscrepancyReason,
	}
}

func toCloseSessionDTO(s *closeSession) CloseSessionDTO {
	sum := s.Summary()
	counts := s.Counts()
	dto := CloseSessionDTO{
		SessionID: s.ID,
		ShiftID:   s.ShiftID,
		Step:      string(s.Step()),
		Summary: SalesSummaryDTO{
			Cash:      sum.Cash,
			Card:      sum.Card,
			Mobile:    sum.Mobile,
			Total:     sum.Total,
			Expected:  sum.Expected,
			SaleCount: sum.SaleCount,
		},
		Counts:      make([]CountDTO, len(counts.Denominations)),
		ActualCash:  counts.Total(),
		Variance:    s.Variance().Delta.Value,
		Reason:      s.Reason(),
		CanFinalize: s.CanFinalize(),
		InFlight:    s.InFlight(),
		Cancelled:   s.Cancelled(),
	}
	for i, d := range counts.Denominations {
		dto.Counts[i] = CountDTO{
			Denomination: d,
			Count:        counts.Counts[i],
			Subtotal:     d.Mul(decimal.NewFromInt(int64(counts.Counts[i]))),
		}
	}
	if rec, ok := s.Closed(); ok {
		closed := toShiftDTO(rec)
		dto.Closed = &closed
	}
	return dto
}

// =============================================================================
// RECEIVING
// =============================================================================

type ShipmentDTO struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	SourceSiteID      string    `json:"source_site_id"`
	DestSiteID        string    `json:"dest_site_id"`
	Status            string    `json:"status"`
	Phase             string    `json:"phase"`
	OrderRef          string    `json:"order_ref"`
	CreatedAt         time.Time `json:"created_at"`
	AssignedDriverID  string    `json:"assigned_driver_id,omitempty"`
	DeliveryMethod    string    `json:"delivery_method,omitempty"`
	DispatchJobStatus string    `json:"dispatch_job_status,omitempty"`
	ItemCount         int       `json:"item_count"`
	UnitCount         int       `json:"unit_count"`
}

type LineItemDTO struct {
	Line        int    `json:"line"`
	SKU         string `json:"sku"`
	ProductID   string `json:"product_id,omitempty"`
	Name        string `json:"name"`
	ExpectedQty int    `json:"expected_qty"`
	ReceivedQty int    `json:"received_qty"`
	Condition   string `json:"condition"`
	Notes       string `json:"notes,omitempty"`
	Discrepant  bool   `json:"discrepant"`
}

type DiscrepanciesDTO struct {
	Short         int `json:"short"`
	Damaged       int `json:"damaged"`
	Over          int `json:"over"`
	Discrepant    int `json:"discrepant"`
	TotalExpected int `json:"total_expected"`
	TotalReceived int `json:"total_received"`
}

type ReceivingSummaryDTO struct {
	ShipmentID       string        `json:"shipment_id"`
	OrderRef         string        `json:"order_ref"`
	ReceivedBy       string        `json:"received_by"`
	Timestamp        time.Time     `json:"timestamp"`
	HasDiscrepancies bool          `json:"has_discrepancies"`
	Items            []LineItemDTO `json:"items"`
}

// ReceivingSessionDTO is the full state of a receiving wizard.
type ReceivingSessionDTO struct {
	SessionID     string               `json:"session_id"`
	ShipmentID    string               `json:"shipment_id"`
	State         string               `json:"state"`
	Items         []LineItemDTO        `json:"items"`
	Discrepancies DiscrepanciesDTO     `json:"discrepancies"`
	CanConfirm    bool                 `json:"can_confirm"`
	InFlight      bool                 `json:"in_flight"`
	Summary       *ReceivingSummaryDTO `json:"summary,omitempty"`
}

func toShipmentDTO(s receiving.Shipment) ShipmentDTO {
	units := 0
	for _, it := range s.Items {
		units += it.Quantity
	}
	return ShipmentDTO{
		ID:                s.ID,
		Kind:              string(s.Kind),
		SourceSiteID:      s.SourceSiteID,
		DestSiteID:        s.DestSiteID,
		Status:            s.Status,
		Phase:             s.Phase().String(),
		OrderRef:          s.OrderRef,
		CreatedAt:         s.CreatedAt,
		AssignedDriverID:  s.AssignedDriverID,
		DeliveryMethod:    string(s.DeliveryMethod),
		DispatchJobStatus: s.DispatchJobStatus,
		ItemCount:         len(s.Items),
		UnitCount:         units,
	}
}

func toLineItemDTOs(items []receiving.LineItem) []LineItemDTO {
	out := make([]LineItemDTO, len(items))
	for i, li := range items {
		out[i] = LineItemDTO{
			Line:        li.Line,
			SKU:         li.SKU,
			ProductID:   li.ProductID,
			Name:        li.Name,
			ExpectedQty: li.ExpectedQty,
			ReceivedQty: li.ReceivedQty,
			Condition:   string(li.Condition),
			Notes:       li.Notes,
			Discrepant:  li.IsDiscrepant(),
		}
	}
	return out
}

func toDiscrepanciesDTO(d receiving.Discrepancies) DiscrepanciesDTO {
	return DiscrepanciesDTO{
		Short:         d.ShortCount,
		Damaged:       d.DamagedCount,
		Over:          d.OverCount,
		Discrepant:    d.DiscrepantCount,
		TotalExpected: d.TotalExpected,
		TotalReceived: d.TotalReceived,
	}
}

func toReceivingSummaryDTO(s receiving.Summary) *ReceivingSummaryDTO {
	return &ReceivingSummaryDTO{
		ShipmentID:       s.ShipmentID,
		OrderRef:         s.OrderRef,
		ReceivedBy:       s.ReceivedBy,
		Timestamp:        s.Timestamp,
		HasDiscrepancies: s.HasDiscrepancies,
		Items:            toLineItemDTOs(s.Items),
	}
}

func toReceivingSessionDTO(s *receivingSession) ReceivingSessionDTO {
	dto := ReceivingSessionDTO{
		SessionID:     s.ID,
		ShipmentID:    s.ShipmentID,
		State:         string(s.State()),
		Items:         toLineItemDTOs(s.Items()),
		Discrepancies: toDiscrepanciesDTO(s.Discrepancies()),
		CanConfirm:    s.CanConfirm(),
		InFlight:      s.InFlight(),
	}
	if sum, ok := s.Summary(); ok {
		dto.Summary = toReceivingSummaryDTO(sum)
	}
	return dto
}

// =============================================================================
// INCENTIVES
// =============================================================================

type TierDTO struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Color         string           `json:"color,omitempty"`
	MinPoints     decimal.Decimal  `json:"min_points"`
	MaxPoints     *decimal.Decimal `json:"max_points"`
	BonusAmount   decimal.Decimal  `json:"bonus_amount"`
	BonusPerPoint decimal.Decimal  `json:"bonus_per_point"`
}

type BonusDTO struct {
	Points          decimal.Decimal `json:"points"`
	Bonus           decimal.Decimal `json:"bonus"`
	Tier            TierDTO         `json:"tier"`
	NextTier        *TierDTO        `json:"next_tier,omitempty"`
	PointsToNext    decimal.Decimal `json:"points_to_next"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
}

type LevelDTO struct {
	Current         int             `json:"current_level"`
	Title           string          `json:"title"`
	Next            int             `json:"next_level"`
	NextTitle       string          `json:"next_title"`
	PointsToNext    decimal.Decimal `json:"points_to_next"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
}

// WorkerCardDTO is one worker's incentive dashboard.
type WorkerCardDTO struct {
	EmployeeID         string          `json:"employee_id"`
	EmployeeName       string          `json:"employee_name"`
	SiteID             string          `json:"site_id"`
	Role               string          `json:"role,omitempty"`
	TotalPoints        decimal.Decimal `json:"total_points"`
	TodayPoints        decimal.Decimal `json:"today_points"`
	WeeklyPoints       decimal.Decimal `json:"weekly_points"`
	MonthlyPoints      decimal.Decimal `json:"monthly_points"`
	CurrentStreak      int             `json:"current_streak"`
	LongestStreak      int             `json:"longest_streak"`
	AverageAccuracy    decimal.Decimal `json:"average_accuracy"`
	TotalJobsCompleted int             `json:"total_jobs_completed"`
	Achievements       []string        `json:"achievements,omitempty"`
	Level              LevelDTO        `json:"level"`
	PayoutMetric       string          `json:"payout_metric"`
	PayoutPeriodStart  time.Time       `json:"payout_period_start"`
	PayoutPeriodEnd    time.Time       `json:"payout_period_end"`
	Bonus              BonusDTO        `json:"bonus"`
	Rank               int             `json:"rank,omitempty"`
}

type PointsBreakdownDTO struct {
	Base     decimal.Decimal `json:"base"`
	Items    decimal.Decimal `json:"items"`
	Accuracy decimal.Decimal `json:"accuracy"`
	Speed    decimal.Decimal `json:"speed"`
	Streak   decimal.Decimal `json:"streak"`
	Total    decimal.Decimal `json:"total"`
}

// JobAwardDTO is the points a job earned and the worker's card after it.
type JobAwardDTO struct {
	Points PointsBreakdownDTO `json:"points"`
	Worker WorkerCardDTO      `json:"worker"`
}

func toPointsBreakdownDTO(b incentive.PointsBreakdown) PointsBreakdownDTO {
	return PointsBreakdownDTO{
		Base: b.Base, Items: b.Items, Accuracy: b.Accuracy,
		Speed: b.Speed, Streak: b.Streak, Total: b.Total,
	}
}

type LeaderboardEntryDTO struct {
	Rank         int             `json:"rank"`
	EmployeeID   string          `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	SiteID       string          `json:"site_id"`
	Points       decimal.Decimal `json:"points"`
	Level        int             `json:"level"`
	Title        string          `json:"title"`
}

type StoreShareDTO struct {
	SiteID         string          `json:"site_id"`
	StorePoints    decimal.Decimal `json:"store_points"`
	Metric         string          `json:"metric"`
	Role           string          `json:"role"`
	RolePercentage decimal.Decimal `json:"role_percentage"`
	StoreBonus     decimal.Decimal `json:"store_bonus"`
	PersonalShare  decimal.Decimal `json:"personal_share"`
}

func toTierDTO(t incentive.BonusTier) TierDTO {
	return TierDTO{
		ID:            t.ID,
		Name:          t.TierName,
		Color:         t.TierColor,
		MinPoints:     t.MinPoints,
		MaxPoints:     t.MaxPoints,
		BonusAmount:   t.BonusAmount,
		BonusPerPoint: t.BonusPerPoint,
	}
}

func toBonusDTO(points decimal.Decimal, b incentive.BonusResult, p incentive.TierProgress) BonusDTO {
	dto := BonusDTO{
		Points:          points,
		Bonus:           b.Bonus,
		Tier:            toTierDTO(b.Tier),
		PointsToNext:    p.PointsToNext,
		ProgressPercent: p.ProgressPercent,
	}
	if p.Next != nil {
		next := toTierDTO(*p.Next)
		dto.NextTier = &next
	}
	return dto
}

func toLevelDTO(li incentive.LevelInfo) LevelDTO {
	return LevelDTO{
		Current:         li.Current.Level,
		Title:           li.Current.Title,
		Next:            li.Next.Level,
		NextTitle:       li.Next.Title,
		PointsToNext:    li.PointsToNext,
		ProgressPercent: li.ProgressPercent,
	}
}

func toWorkerCardDTO(c incentive.Card) WorkerCardDTO {
	w := c.Worker
	return WorkerCardDTO{
		EmployeeID:         w.EmployeeID,
		EmployeeName:       w.EmployeeName,
		SiteID:             w.SiteID,
		Role:               w.Role,
		TotalPoints:        w.TotalPoints,
		TodayPoints:        w.TodayPoints,
		WeeklyPoints:       w.WeeklyPoints,
		MonthlyPoints:      w.MonthlyPoints,
		CurrentStreak:      w.CurrentStreak,
		LongestStreak:      w.LongestStreak,
		AverageAccuracy:    w.AverageAccuracy,
		TotalJobsCompleted: w.TotalJobsCompleted,
		Achievements:       w.Achievements,
		Level:              toLevelDTO(c.Level),
		PayoutMetric:       string(c.PayoutMetric),
		Bonus:              toBonusDTO(c.PayoutPoints, c.Bonus, c.TierProgress),
		Rank:               c.Rank,
	}
}

// =============================================================================
// LEDGER & NOTIFICATIONS
// =============================================================================

type LedgerEntryDTO struct {
	ID          string            `json:"id"`
	EntityID    string            `json:"entity_id"`
	SubjectID   string            `json:"subject_id"`
	Kind        string            `json:"kind"`
	Unit        string            `json:"unit"`
	Expected    decimal.Decimal   `json:"expected"`
	Actual      decimal.Decimal   `json:"actual"`
	Delta       decimal.Decimal   `json:"delta"`
	Reason      string            `json:"reason,omitempty"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LedgerDTO lists an entity's entries with the net variance per unit.
type LedgerDTO struct {
	EntityID string                     `json:"entity_id"`
	Entries  []LedgerEntryDTO           `json:"entries"`
	Net      map[string]decimal.Decimal `json:"net"`
}

func toLedgerDTO(entity string, es []generic.Entry) LedgerDTO {
	dto := LedgerDTO{
		EntityID: entity,
		Entries:  make([]LedgerEntryDTO, len(es)),
		Net:      make(map[string]decimal.Decimal),
	}
	for i, e := range es {
		v := e.Variance()
		dto.Entries[i] = LedgerEntryDTO{
			ID:          string(e.ID),
			EntityID:    string(e.EntityID),
			SubjectID:   string(e.SubjectID),
			Kind:        string(e.Kind),
			Unit:        string(e.Actual.Unit),
			Expected:    e.Expected.Value,
			Actual:      e.Actual.Value,
			Delta:       v.Delta.Value,
			Reason:      e.Reason,
			ReferenceID: e.ReferenceID,
			Metadata:    e.Metadata,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt,
		}
		unit := string(e.Actual.Unit)
		dto.Net[unit] = dto.Net[unit].Add(v.Delta.Value)
	}
	return dto
}

type NotificationDTO struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func toNotificationDTOs(recs []notify.Record) []NotificationDTO {
	out := make([]NotificationDTO, len(recs))
	for i, r := range recs {
		out[i] = NotificationDTO{Kind: string(r.Kind), Message: r.Message, At: r.At}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
