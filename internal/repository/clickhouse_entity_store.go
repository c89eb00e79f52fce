package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RiskPulse/internal/domain/models"
	pkgch "RiskPulse/pkg/clickhouse"
	applogger "RiskPulse/pkg/logger"
)

// StarSchema returns the DDL of the warehouse read by CHEntityStore.
func StarSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.dim_customer (
            customer_id        String,
            fico_score         Int32,
            fico_category      String,
            annual_income      Float64,
            employment_years   Float64,
            delinq_2yrs        Int32,
            credit_utilization Float64,
            dti_ratio          Float64,
            dti_bucket         String,
            customer_segment   String,
            risk_category      String
        ) ENGINE = ReplacingMergeTree ORDER BY customer_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.dim_product (
            product_id  String,
            grade       String,
            sub_grade   String,
            term_months Int32,
            purpose     String
        ) ENGINE = ReplacingMergeTree ORDER BY product_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.dim_geography (
            geography_id String,
            region       String,
            state_code   String,
            state_name   String
        ) ENGINE = ReplacingMergeTree ORDER BY geography_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.dim_time (
            date_key      UInt32,
            full_date     Date,
            year          Int32,
            quarter       Int32,
            month         Int32,
            month_name    String,
            vintage_month String
        ) ENGINE = ReplacingMergeTree ORDER BY date_key`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.fact_loans (
            loan_id             String,
            customer_id         String,
            product_id          String,
            geography_id        String,
            date_key            UInt32,
            issue_date          Date,
            loan_amount         Float64,
            funded_amount       Float64,
            interest_rate       Float64,
            installment         Float64,
            loan_status         LowCardinality(String),
            is_default          Bool,
            is_current          Bool,
            is_paid_off         Bool,
            total_payment       Float64,
            principal_received  Float64,
            interest_received   Float64,
            risk_score          Float64,
            default_probability Float64,
            months_since_issue  Int32,
            net_profit_loss     Float64,
            roi                 Float64
        ) ENGINE = ReplacingMergeTree ORDER BY loan_id`, database),
	}
}

// CHEntityStore reads the loan star schema from ClickHouse.
type CHEntityStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHEntityStore(ch *pkgch.Client, database string) *CHEntityStore {
	return &CHEntityStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHEntityStore) SetLogger(l *applogger.Logger) { s.l = l }

// Snapshot reads all five collections. Dimension rows are read before the
// fact table so that a reload racing with the read can only orphan loans,
// which the joiner then excludes.
func (s *CHEntityStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	snap := &models.Snapshot{}

	err := s.query(ctx, "dim_customer", `
        SELECT customer_id, fico_score, fico_category, annual_income, employment_years,
               delinq_2yrs, credit_utilization, dti_ratio, dti_bucket, customer_segment, risk_category
        FROM %s.dim_customer FINAL`,
		func(rows *sql.Rows) error {
			var c models.CustomerProfile
			if err := rows.Scan(&c.CustomerID, &c.FicoScore, &c.FicoCategory, &c.AnnualIncome, &c.EmploymentYears,
				&c.Delinquencies2y, &c.CreditUtilization, &c.DTIRatio, &c.DTIBucket, &c.Segment, &c.RiskCategory); err != nil {
				return err
			}
			snap.Customers = append(snap.Customers, c)
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "dim_product", `
        SELECT product_id, grade, sub_grade, term_months, purpose FROM %s.dim_product FINAL`,
		func(rows *sql.Rows) error {
			var p models.ProductInfo
			if err := rows.Scan(&p.ProductID, &p.Grade, &p.SubGrade, &p.TermMonths, &p.Purpose); err != nil {
				return err
			}
			snap.Products = append(snap.Products, p)
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "dim_geography", `
        SELECT geography_id, region, state_code, state_name FROM %s.dim_geography FINAL`,
		func(rows *sql.Rows) error {
			var g models.GeographyInfo
			if err := rows.Scan(&g.GeographyID, &g.Region, &g.StateCode, &g.StateName); err != nil {
				return err
			}
			snap.Geographies = append(snap.Geographies, g)
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "dim_time", `
        SELECT date_key, full_date, year, quarter, month, month_name, vintage_month FROM %s.dim_time FINAL`,
		func(rows *sql.Rows) error {
			var t models.TimeDimension
			if err := rows.Scan(&t.DateKey, &t.Date, &t.Year, &t.Quarter, &t.Month, &t.MonthName, &t.VintageMonth); err != nil {
				return err
			}
			snap.Calendar = append(snap.Calendar, t)
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "fact_loans", `
        SELECT loan_id, customer_id, product_id, geography_id, date_key, issue_date,
               loan_amount, funded_amount, interest_rate, installment,
               loan_status, is_default, is_current, is_paid_off,
               total_payment, principal_received, interest_received,
               risk_score, default_probability, months_since_issue, net_profit_loss, roi
        FROM %s.fact_loans FINAL`,
		func(rows *sql.Rows) error {
			var l models.LoanRecord
			var status string
			if err := rows.Scan(&l.LoanID, &l.CustomerID, &l.ProductID, &l.GeographyID, &l.DateKey, &l.IssueDate,
				&l.LoanAmount, &l.FundedAmount, &l.InterestRate, &l.Installment,
				&status, &l.IsDefault, &l.IsCurrent, &l.IsPaidOff,
				&l.TotalPayment, &l.PrincipalReceived, &l.InterestReceived,
				&l.RiskScore, &l.DefaultProbability, &l.MonthsSinceIssue, &l.NetProfitLoss, &l.ROI); err != nil {
				return err
			}
			l.Status = models.LoanStatus(status)
			snap.Loans = append(snap.Loans, l)
			return nil
		})
	if err != nil {
		return nil, err
	}

	snap.LoadedAt = time.Now().UTC()
	if s.l != nil {
		s.l.Info("clickhouse snapshot ok",
			applogger.String("database", s.database),
			applogger.Int("loans", len(snap.Loans)),
			applogger.Int("customers", len(snap.Customers)),
			applogger.Int("products", len(snap.Products)),
			applogger.Int("geographies", len(snap.Geographies)),
			applogger.Int("calendar", len(snap.Calendar)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return snap, nil
}

func (s *CHEntityStore) query(ctx context.Context, table, qtpl string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.database))
	if err != nil {
		s.logErr("query", table, err)
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			s.logErr("scan", table, err)
			return fmt.Errorf("scan %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		s.logErr("rows", table, err)
		return fmt.Errorf("rows %s: %w", table, err)
	}
	return nil
}

func (s *CHEntityStore) logErr(stage, table string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse snapshot "+stage+" error",
		applogger.String("database", s.database),
		applogger.String("table", table),
		applogger.Error(err),
	)
}

// StoreSnapshot loads every collection of snap with multi-row inserts.
func (s *CHEntityStore) StoreSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := s.insert(ctx, "dim_customer",
		[]string{"customer_id", "fico_score", "fico_category", "annual_income", "employment_years",
			"delinq_2yrs", "credit_utilization", "dti_ratio", "dti_bucket", "customer_segment", "risk_category"},
		len(snap.Customers), func(i int) []interface{} {
			c := snap.Customers[i]
			return []interface{}{c.CustomerID, int32(c.FicoScore), c.FicoCategory, c.AnnualIncome, c.EmploymentYears,
				int32(c.Delinquencies2y), c.CreditUtilization, c.DTIRatio, c.DTIBucket, c.Segment, c.RiskCategory}
		}); err != nil {
		return err
	}
	if err := s.insert(ctx, "dim_product",
		[]string{"product_id", "grade", "sub_grade", "term_months", "purpose"},
		len(snap.Products), func(i int) []interface{} {
			p := snap.Products[i]
			return []interface{}{p.ProductID, p.Grade, p.SubGrade, int32(p.TermMonths), p.Purpose}
		}); err != nil {
		return err
	}
	if err := s.insert(ctx, "dim_geography",
		[]string{"geography_id", "region", "state_code", "state_name"},
		len(snap.Geographies), func(i int) []interface{} {
			g := snap.Geographies[i]
			return []interface{}{g.GeographyID, g.Region, g.StateCode, g.StateName}
		}); err != nil {
		return err
	}
	if err := s.insert(ctx, "dim_time",
		[]string{"date_key", "full_date", "year", "quarter", "month", "month_name", "vintage_month"},
		len(snap.Calendar), func(i int) []interface{} {
			t := snap.Calendar[i]
			return []interface{}{uint32(t.DateKey), t.Date, int32(t.Year), int32(t.Quarter), int32(t.Month), t.MonthName, t.VintageMonth}
		}); err != nil {
		return err
	}
	return s.insert(ctx, "fact_loans",
		[]string{"loan_id", "customer_id", "product_id", "geography_id", "date_key", "issue_date",
			"loan_amount", "funded_amount", "interest_rate", "installment",
			"loan_status", "is_default", "is_current", "is_paid_off",
			"total_payment", "principal_received", "interest_received",
			"risk_score", "default_probability", "months_since_issue", "net_profit_loss", "roi"},
		len(snap.Loans), func(i int) []interface{} {
			l := snap.Loans[i]
			return []interface{}{l.LoanID, l.CustomerID, l.ProductID, l.GeographyID, uint32(l.DateKey), l.IssueDate,
				l.LoanAmount, l.FundedAmount, l.InterestRate, l.Installment,
				string(l.Status), l.IsDefault, l.IsCurrent, l.IsPaidOff,
				l.TotalPayment, l.PrincipalReceived, l.InterestReceived,
				l.RiskScore, l.DefaultProbability, int32(l.MonthsSinceIssue), l.NetProfitLoss, l.ROI}
		})
}

// insert writes n rows in chunks of VALUES tuples to limit round-trips.
func (s *CHEntityStore) insert(ctx context.Context, table string, cols []string, n int, row func(int) []interface{}) error {
	const chunkSize = 2000
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			values = append(values, tuple)
			args = append(args, row(i)...)
		}
		q := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES %s", s.database, table, strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logErr("insert", table, err)
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	if s.l != nil {
		s.l.Debug("clickhouse insert ok", applogger.String("table", table), applogger.Int("rows", n))
	}
	return nil
}

func (s *CHEntityStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHEntityStore) Close() error {
	return nil // Managed by pkg
}
