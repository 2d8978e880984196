package models

import "github.com/shopspring/decimal"

// MonthlyReport is the foreman's settlement report for one installment month
type MonthlyReport struct {
	ReportID              string          `gorm:"primarykey;column:report_id" json:"reportId"`
	SchemeID              string          `gorm:"column:scheme_id;not null;uniqueIndex:idx_report_scheme_period" json:"schemeId"`
	Period                string          `gorm:"column:period;type:varchar(7);not null;uniqueIndex:idx_report_scheme_period" json:"period"`
	InstallmentNumber     int             `gorm:"column:installment_number;not null" json:"installmentNumber"`
	CollectedAmount       decimal.Decimal `gorm:"column:collected_amount;type:numeric(15,2);not null" json:"collectedAmount"`
	PrizeAmount           decimal.Decimal `gorm:"column:prize_amount;type:numeric(15,2);not null" json:"prizeAmount"`
	AuctionDiscount       decimal.Decimal `gorm:"column:auction_discount;type:numeric(15,2);not null" json:"auctionDiscount"`
	ForemanCommission     decimal.Decimal `gorm:"column:foreman_commission;type:numeric(15,2);not null" json:"foremanCommission"`
	DividendPerSubscriber decimal.Decimal `gorm:"column:dividend_per_subscriber;type:numeric(15,2);not null" json:"dividendPerSubscriber"`
	WinnerUCFSIN          string          `gorm:"column:winner_ucfsin;not null" json:"winnerUcfsin"`
	DefaulterUCFSINs      StringList      `gorm:"column:defaulter_ucfsins" json:"defaulterUcfsins"`
	Status                ReportStatus    `gorm:"column:status;type:varchar(20);not null;default:'submitted'" json:"status"`
	Review                *string         `gorm:"column:review" json:"review,omitempty"`
	SubmittedBy           string          `gorm:"column:submitted_by;not null" json:"submittedBy"`
	ReviewedBy            *string         `gorm:"column:reviewed_by" json:"reviewedBy,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (MonthlyReport) TableName() string {
	return "monthly_reports"
}

// ChitScore is the profile summary shown to subscribers
type ChitScore struct {
	UserID          string  `json:"userId"`
	UCFSIN          string  `json:"ucfsin,omitempty"`
	Enrollments     int     `json:"enrollments"`
	AcceptedReports int     `json:"acceptedReports"`
	DefaultedMonths int     `json:"defaultedMonths"`
	OnTimeMonths    int     `json:"onTimeMonths"`
	OnTimeRatio     float64 `json:"onTimeRatio"`
	Score           int     `json:"score"`
	Band            string  `json:"band"`
}

// Chit score bands
const (
	ScoreBandExcellent           = "excellent"
	ScoreBandGood                = "good"
	ScoreBandFair                = "fair"
	ScoreBandPoor                = "poor"
	ScoreBandInsufficientHistory = "insufficient_history"
)
