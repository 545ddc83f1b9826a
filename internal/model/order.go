package model

import (
	"fmt"
	"time"
)

// Stage is a phase of order submission. Transitions are monotonic along
// StageOrder; the only backward move is an explicit restart.
type Stage string

const (
	StageAwaitingAppSelection         Stage = "awaiting_app_selection"
	StageAwaitingInitialScreenshot    Stage = "awaiting_initial_screenshot"
	StageVerifyingInitialData         Stage = "verifying_initial_data"
	StageAwaitingCompletionScreenshot Stage = "awaiting_completion_screenshot"
	StageVerifyingCompletionData      Stage = "verifying_completion_data"
	StageCollectingMissingInfo        Stage = "collecting_missing_info"
	StageCompleted                    Stage = "completed"
)

var StageOrder = []Stage{
	StageAwaitingAppSelection,
	StageAwaitingInitialScreenshot,
	StageVerifyingInitialData,
	StageAwaitingCompletionScreenshot,
	StageVerifyingCompletionData,
	StageCollectingMissingInfo,
	StageCompleted,
}

func (s Stage) Valid() bool {
	for _, st := range StageOrder {
		if s == st {
			return true
		}
	}
	return false
}

// App is the delivery app the order was placed through.
type App string

const (
	AppUberEats App = "ubereats"
	AppDoorDash App = "doordash"
	AppGrubHub  App = "grubhub"
)

var Apps = []App{AppUberEats, AppDoorDash, AppGrubHub}

func (a App) Valid() bool {
	for _, app := range Apps {
		if a == app {
			return true
		}
	}
	return false
}

// Order is one submission attempt, keyed 1:1 by conversation id.
type Order struct {
	ID             int64  `json:"order_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Status         Stage  `json:"status"`
	AppUsed        *App   `json:"app_used,omitempty"`

	RestaurantName               *string `json:"restaurant_name,omitempty"`
	RestaurantAddress            *string `json:"restaurant_address,omitempty"`
	OrderPlacementTime           *int64  `json:"order_placement_time,omitempty"`
	EarliestEstimatedArrivalTime *int64  `json:"earliest_estimated_arrival_time,omitempty"`
	LatestEstimatedArrivalTime   *int64  `json:"latest_estimated_arrival_time,omitempty"`
	OrderCompletionTime          *int64  `json:"order_completion_time,omitempty"`

	IsRestaurantNameVerified               bool `json:"is_restaurant_name_verified"`
	IsRestaurantAddressVerified            bool `json:"is_restaurant_address_verified"`
	IsOrderPlacementTimeVerified           bool `json:"is_order_placement_time_verified"`
	IsEarliestEstimatedArrivalTimeVerified bool `json:"is_earliest_estimated_arrival_time_verified"`
	IsLatestEstimatedArrivalTimeVerified   bool `json:"is_latest_estimated_arrival_time_verified"`
	IsOrderCompletionTimeVerified          bool `json:"is_order_completion_time_verified"`

	PlacementScreenshotPath  *string   `json:"placement_screenshot_path,omitempty"`
	CompletionScreenshotPath *string   `json:"completion_screenshot_path,omitempty"`
	ChannelCreationTime      time.Time `json:"channel_creation_time"`
}

// FieldSpec describes one extractable/verifiable order field.
type FieldSpec struct {
	Column         string
	VerifiedColumn string
	TimeTyped      bool
}

// VerifiableFields is the fixed prompt order of the verification cycle.
var VerifiableFields = []FieldSpec{
	{Column: "restaurant_name", VerifiedColumn: "is_restaurant_name_verified"},
	{Column: "order_placement_time", VerifiedColumn: "is_order_placement_time_verified", TimeTyped: true},
	{Column: "earliest_estimated_arrival_time", VerifiedColumn: "is_earliest_estimated_arrival_time_verified", TimeTyped: true},
	{Column: "latest_estimated_arrival_time", VerifiedColumn: "is_latest_estimated_arrival_time_verified", TimeTyped: true},
	{Column: "order_completion_time", VerifiedColumn: "is_order_completion_time_verified", TimeTyped: true},
	{Column: "restaurant_address", VerifiedColumn: "is_restaurant_address_verified"},
}

// RequiredFields is the backfill subset: every verifiable field except the
// restaurant address.
func RequiredFields() []FieldSpec {
	fields := make([]FieldSpec, 0, len(VerifiableFields)-1)
	for _, f := range VerifiableFields {
		if f.Column == "restaurant_address" {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

func FieldByColumn(column string) (FieldSpec, bool) {
	for _, f := range VerifiableFields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// UpdatableColumns is the write whitelist shared by the store adapter and
// Apply. Keys outside this list are silently dropped.
var UpdatableColumns = []string{
	"status",
	"app_used",
	"restaurant_name",
	"restaurant_address",
	"order_placement_time",
	"earliest_estimated_arrival_time",
	"latest_estimated_arrival_time",
	"order_completion_time",
	"is_restaurant_name_verified",
	"is_restaurant_address_verified",
	"is_order_placement_time_verified",
	"is_earliest_estimated_arrival_time_verified",
	"is_latest_estimated_arrival_time_verified",
	"is_order_completion_time_verified",
	"placement_screenshot_path",
	"completion_screenshot_path",
}

func updatable(column string) bool {
	for _, c := range UpdatableColumns {
		if c == column {
			return true
		}
	}
	return false
}

// FieldSet reports whether the field holds a value.
func (o *Order) FieldSet(column string) bool {
	switch column {
	case "restaurant_name":
		return o.RestaurantName != nil
	case "restaurant_address":
		return o.RestaurantAddress != nil
	case "order_placement_time":
		return o.OrderPlacementTime != nil
	case "earliest_estimated_arrival_time":
		return o.EarliestEstimatedArrivalTime != nil
	case "latest_estimated_arrival_time":
		return o.LatestEstimatedArrivalTime != nil
	case "order_completion_time":
		return o.OrderCompletionTime != nil
	}
	return false
}

func (o *Order) FieldVerified(column string) bool {
	switch column {
	case "restaurant_name":
		return o.IsRestaurantNameVerified
	case "restaurant_address":
		return o.IsRestaurantAddressVerified
	case "order_placement_time":
		return o.IsOrderPlacementTimeVerified
	case "earliest_estimated_arrival_time":
		return o.IsEarliestEstimatedArrivalTimeVerified
	case "latest_estimated_arrival_time":
		return o.IsLatestEstimatedArrivalTimeVerified
	case "order_completion_time":
		return o.IsOrderCompletionTimeVerified
	}
	return false
}

// FieldDisplay renders the stored value for a verification prompt. Time
// fields are shown in local time in the same format users type them back.
func (o *Order) FieldDisplay(column string) string {
	switch column {
	case "restaurant_name":
		if o.RestaurantName != nil {
			return *o.RestaurantName
		}
	case "restaurant_address":
		if o.RestaurantAddress != nil {
			return *o.RestaurantAddress
		}
	case "order_placement_time":
		return displayTime(o.OrderPlacementTime)
	case "earliest_estimated_arrival_time":
		return displayTime(o.EarliestEstimatedArrivalTime)
	case "latest_estimated_arrival_time":
		return displayTime(o.LatestEstimatedArrivalTime)
	case "order_completion_time":
		return displayTime(o.OrderCompletionTime)
	}
	return ""
}

func displayTime(ts *int64) string {
	if ts == nil {
		return ""
	}
	return time.Unix(*ts, 0).Local().Format("2006-01-02 15:04")
}

// Apply mirrors the store's partial-update semantics onto an in-memory
// record: whitelisted keys only, nil clears, unknown keys dropped.
func (o *Order) Apply(fields map[string]any) error {
	for column, value := range fields {
		if !updatable(column) {
			continue
		}
		if err := o.applyOne(column, value); err != nil {
			return err
		}
	}
	return nil
}

func (o *Order) applyOne(column string, value any) error {
	switch column {
	case "status":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("apply %s: want string, got %T", column, value)
		}
		o.Status = Stage(s)
	case "app_used":
		if value == nil {
			o.AppUsed = nil
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("apply %s: want string, got %T", column, value)
		}
		app := App(s)
		o.AppUsed = &app
	case "restaurant_name":
		return applyString(&o.RestaurantName, column, value)
	case "restaurant_address":
		return applyString(&o.RestaurantAddress, column, value)
	case "order_placement_time":
		return applyInt(&o.OrderPlacementTime, column, value)
	case "earliest_estimated_arrival_time":
		return applyInt(&o.EarliestEstimatedArrivalTime, column, value)
	case "latest_estimated_arrival_time":
		return applyInt(&o.LatestEstimatedArrivalTime, column, value)
	case "order_completion_time":
		return applyInt(&o.OrderCompletionTime, column, value)
	case "is_restaurant_name_verified":
		return applyBool(&o.IsRestaurantNameVerified, column, value)
	case "is_restaurant_address_verified":
		return applyBool(&o.IsRestaurantAddressVerified, column, value)
	case "is_order_placement_time_verified":
		return applyBool(&o.IsOrderPlacementTimeVerified, column, value)
	case "is_earliest_estimated_arrival_time_verified":
		return applyBool(&o.IsEarliestEstimatedArrivalTimeVerified, column, value)
	case "is_latest_estimated_arrival_time_verified":
		return applyBool(&o.IsLatestEstimatedArrivalTimeVerified, column, value)
	case "is_order_completion_time_verified":
		return applyBool(&o.IsOrderCompletionTimeVerified, column, value)
	case "placement_screenshot_path":
		return applyString(&o.PlacementScreenshotPath, column, value)
	case "completion_screenshot_path":
		return applyString(&o.CompletionScreenshotPath, column, value)
	}
	return nil
}

func applyString(dst **string, column string, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("apply %s: want string, got %T", column, value)
	}
	*dst = &s
	return nil
}

func applyInt(dst **int64, column string, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	n, ok := value.(int64)
	if !ok {
		return fmt.Errorf("apply %s: want int64, got %T", column, value)
	}
	*dst = &n
	return nil
}

func applyBool(dst *bool, column string, value any) error {
	b, ok := value.(bool)
	if !ok {
		return fmt.Errorf("apply %s: want bool, got %T", column, value)
	}
	*dst = b
	return nil
}
