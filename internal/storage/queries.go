package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"faturas/internal/core"
)

// tables maps deletable collections to their table names.
var tables = map[core.Collection]string{
	core.CollectionCards:         "cards",
	core.CollectionClients:       "clients",
	core.CollectionLoans:         "loans",
	core.CollectionSubscriptions: "subscriptions",
	core.CollectionExpenses:      "expenses",
	core.CollectionIncomes:       "incomes",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const listCards = `SELECT id, name, limit_cents, closing_day, due_day, color
FROM cards WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListCards(ctx context.Context, userID string) ([]core.Card, error) {
	rows, err := q.db.QueryContext(ctx, listCards, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Card{}
	for rows.Next() {
		var c core.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Limit.Cents, &c.ClosingDay, &c.DueDay, &c.Color); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const upsertCard = `INSERT INTO cards (user_id, id, name, limit_cents, closing_day, due_day, color)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    name = excluded.name,
    limit_cents = excluded.limit_cents,
    closing_day = excluded.closing_day,
    due_day = excluded.due_day,
    color = excluded.color`

func (q *Queries) UpsertCard(ctx context.Context, userID string, c core.Card) error {
	_, err := q.db.ExecContext(ctx, upsertCard, userID, c.ID, c.Name, c.Limit.Cents, c.ClosingDay, c.DueDay, c.Color)
	return err
}

const listClients = `SELECT id, name FROM clients WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListClients(ctx context.Context, userID string) ([]core.Client, error) {
	rows, err := q.db.QueryContext(ctx, listClients, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Client{}
	for rows.Next() {
		var c core.Client
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const upsertClient = `INSERT INTO clients (user_id, id, name) VALUES (?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET name = excluded.name`

func (q *Queries) UpsertClient(ctx context.Context, userID string, c core.Client) error {
	_, err := q.db.ExecContext(ctx, upsertClient, userID, c.ID, c.Name)
	return err
}

const loanColumns = `id, description, total_cents, installments_count, purchase_date, card_id, plan_json`

const listLoans = `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListLoans(ctx context.Context, userID string) ([]core.Loan, error) {
	rows, err := q.db.QueryContext(ctx, listLoans, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const getLoan = `SELECT ` + loanColumns + ` FROM loans WHERE user_id = ? AND id = ?`

func (q *Queries) GetLoan(ctx context.Context, userID, id string) (core.Loan, error) {
	l, err := scanLoan(q.db.QueryRowContext(ctx, getLoan, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, fmt.Errorf("loan %s: %w", id, core.ErrNotFound)
	}
	return l, err
}

// scanLoan reads a loan row. Undecodable content becomes the loan's Defect
// instead of an error so one bad record never hides the others.
func scanLoan(s scanner) (core.Loan, error) {
	var (
		l        core.Loan
		purchase string
		plan     []byte
	)
	if err := s.Scan(&l.ID, &l.Description, &l.TotalValue.Cents, &l.InstallmentsCount, &purchase, &l.CardID, &plan); err != nil {
		return core.Loan{}, err
	}

	d, err := core.ParseDate(purchase)
	if err != nil {
		l.Defect = "invalid purchase date"
	}
	l.PurchaseDate = d

	p, err := DecodePlan(plan)
	if err != nil {
		l.Defect = err.Error()
		return l, nil
	}
	l.Plan = p
	return l, nil
}

const upsertLoan = `INSERT INTO loans (user_id, id, description, total_cents, installments_count, purchase_date, card_id, shared, plan_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    description = excluded.description,
    total_cents = excluded.total_cents,
    installments_count = excluded.installments_count,
    purchase_date = excluded.purchase_date,
    card_id = excluded.card_id,
    shared = excluded.shared,
    plan_json = excluded.plan_json,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertLoan(ctx context.Context, userID string, l core.Loan) error {
	plan, err := EncodePlan(l.Plan)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, upsertLoan, userID, l.ID, l.Description, l.TotalValue.Cents,
		l.InstallmentsCount, l.PurchaseDate.String(), l.CardID, l.Shared(), string(plan))
	return err
}

const listSubscriptions = `SELECT id, description, amount_cents, due_day, card_id, client_id, active
FROM subscriptions WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListSubscriptions(ctx context.Context, userID string) ([]core.Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Subscription{}
	for rows.Next() {
		var s core.Subscription
		if err := rows.Scan(&s.ID, &s.Description, &s.Amount.Cents, &s.DueDay, &s.CardID, &s.ClientID, &s.Active); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const upsertSubscription = `INSERT INTO subscriptions (user_id, id, description, amount_cents, due_day, card_id, client_id, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    description = excluded.description,
    amount_cents = excluded.amount_cents,
    due_day = excluded.due_day,
    card_id = excluded.card_id,
    client_id = excluded.client_id,
    active = excluded.active`

func (q *Queries) UpsertSubscription(ctx context.Context, userID string, s core.Subscription) error {
	_, err := q.db.ExecContext(ctx, upsertSubscription, userID, s.ID, s.Description, s.Amount.Cents,
		s.DueDay, s.CardID, s.ClientID, s.Active)
	return err
}

const expenseColumns = `id, description, value_cents, date, category, card_id, client_id, status`

const listExpenses = `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = ? AND id = ?`

func (q *Queries) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := scanExpense(q.db.QueryRowContext(ctx, getExpense, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return e, err
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e    core.Expense
		date string
	)
	if err := s.Scan(&e.ID, &e.Description, &e.Value.Cents, &date, &e.Category, &e.CardID, &e.ClientID, &e.Status); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	e.Date = d
	return e, nil
}

const upsertExpense = `INSERT INTO expenses (user_id, id, description, value_cents, date, category, card_id, client_id, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    description = excluded.description,
    value_cents = excluded.value_cents,
    date = excluded.date,
    category = excluded.category,
    card_id = excluded.card_id,
    client_id = excluded.client_id,
    status = excluded.status`

func (q *Queries) UpsertExpense(ctx context.Context, userID string, e core.Expense) error {
	_, err := q.db.ExecContext(ctx, upsertExpense, userID, e.ID, e.Description, e.Value.Cents,
		e.Date.String(), e.Category, e.CardID, e.ClientID, string(e.Status))
	return err
}

const setExpenseStatus = `UPDATE expenses SET status = ? WHERE user_id = ? AND id = ?`

func (q *Queries) SetExpenseStatus(ctx context.Context, userID, id string, status core.Status) (int64, error) {
	res, err := q.db.ExecContext(ctx, setExpenseStatus, string(status), userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listIncomes = `SELECT id, description, value_cents, date, client_id
FROM incomes WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListIncomes(ctx context.Context, userID string) ([]core.Income, error) {
	rows, err := q.db.QueryContext(ctx, listIncomes, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Income{}
	for rows.Next() {
		var (
			in   core.Income
			date string
		)
		if err := rows.Scan(&in.ID, &in.Description, &in.Value.Cents, &date, &in.ClientID); err != nil {
			return nil, err
		}
		if in.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("income %s: %w", in.ID, err)
		}
		items = append(items, in)
	}
	return items, rows.Err()
}

const upsertIncome = `INSERT INTO incomes (user_id, id, description, value_cents, date, client_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    description = excluded.description,
    value_cents = excluded.value_cents,
    date = excluded.date,
    client_id = excluded.client_id`

func (q *Queries) UpsertIncome(ctx context.Context, userID string, in core.Income) error {
	_, err := q.db.ExecContext(ctx, upsertIncome, userID, in.ID, in.Description, in.Value.Cents,
		in.Date.String(), in.ClientID)
	return err
}

const listMarkers = `SELECT subscription_id, month, paid_date
FROM paid_subscriptions WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListMarkers(ctx context.Context, userID string) ([]core.PaidSubscriptionMarker, error) {
	rows, err := q.db.QueryContext(ctx, listMarkers, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.PaidSubscriptionMarker{}
	for rows.Next() {
		var (
			m           core.PaidSubscriptionMarker
			month, paid string
		)
		if err := rows.Scan(&m.SubscriptionID, &month, &paid); err != nil {
			return nil, err
		}
		if m.Month, err = core.ParseYearMonth(month); err != nil {
			return nil, err
		}
		if m.PaidDate, err = core.ParseDate(paid); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const insertMarker = `INSERT OR IGNORE INTO paid_subscriptions (user_id, subscription_id, month, paid_date)
VALUES (?, ?, ?, ?)`

func (q *Queries) InsertMarker(ctx context.Context, userID string, m core.PaidSubscriptionMarker) error {
	_, err := q.db.ExecContext(ctx, insertMarker, userID, m.SubscriptionID, m.Month.String(), m.PaidDate.String())
	return err
}

const deleteMarkers = `DELETE FROM paid_subscriptions WHERE user_id = ? AND subscription_id = ? AND month = ?`

func (q *Queries) DeleteMarkers(ctx context.Context, userID, subscriptionID string, month core.YearMonth) error {
	_, err := q.db.ExecContext(ctx, deleteMarkers, userID, subscriptionID, month.String())
	return err
}

// DeleteRecord removes one document of a collection and reports how many rows went.
func (q *Queries) DeleteRecord(ctx context.Context, c core.Collection, userID, id string) (int64, error) {
	table, ok := tables[c]
	if !ok {
		return 0, fmt.Errorf("collection %q is not deletable", c)
	}
	res, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getProfile = `SELECT plan, trial_expires_at FROM profiles WHERE user_id = ?`

func (q *Queries) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	p := core.Profile{UserID: userID}
	var trial sql.NullTime
	err := q.db.QueryRowContext(ctx, getProfile, userID).Scan(&p.Plan, &trial)
	if err != nil {
		return core.Profile{}, err
	}
	if trial.Valid {
		t := trial.Time
		p.TrialExpiresAt = &t
	}
	return p, nil
}

const upsertProfile = `INSERT INTO profiles (user_id, plan, trial_expires_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET plan = excluded.plan, trial_expires_at = excluded.trial_expires_at`

func (q *Queries) UpsertProfile(ctx context.Context, p core.Profile) error {
	var trial interface{}
	if p.TrialExpiresAt != nil {
		trial = p.TrialExpiresAt.UTC()
	}
	_, err := q.db.ExecContext(ctx, upsertProfile, p.UserID, p.Plan, trial)
	return err
}

const listUserIDs = `SELECT user_id FROM profiles
UNION SELECT user_id FROM loans
UNION SELECT user_id FROM expenses
UNION SELECT user_id FROM subscriptions
ORDER BY user_id`

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const insertActivity = `INSERT INTO payment_activity (user_id, kind, item_id, status, month, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertActivity(ctx context.Context, a Activity) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertActivity, a.UserID, a.Kind, a.ItemID, a.Status, a.Month, a.Detail, a.OccurredAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listActivity = `SELECT id, user_id, kind, item_id, status, month, detail, occurred_at
FROM payment_activity WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`

func (q *Queries) ListActivity(ctx context.Context, userID string, limit int) ([]Activity, error) {
	rows, err := q.db.QueryContext(ctx, listActivity, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Activity{}
	for rows.Next() {
		var (
			a  Activity
			at time.Time
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.ItemID, &a.Status, &a.Month, &a.Detail, &at); err != nil {
			return nil, err
		}
		a.OccurredAt = at
		items = append(items, a)
	}
	return items, rows.Err()
}
