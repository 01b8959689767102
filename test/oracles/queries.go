package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked against the live database while the
// actors run. Any returned row is a violation.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_no_schedule_overlap",
			SQL: `SELECT a.id, b.id, a.staff_id FROM appointments a
                  JOIN appointments b ON b.staff_id = a.staff_id AND b.id > a.id
                  WHERE a.status <> 'cancelled' AND b.status <> 'cancelled'
                    AND a.start_time < b.end_time AND a.end_time > b.start_time`,
		},
		{
			Name: "O2_single_live_deal_per_listing",
			SQL: `SELECT listing_id, COUNT(*) FROM deals
                  WHERE status <> 'cancelled'
                  GROUP BY listing_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_listing_deal_agreement",
			SQL: `SELECT l.id, l.status, 'negotiating_without_deal' AS detail
                  FROM listings l
                  WHERE l.status = 'negotiating'
                    AND NOT EXISTS (SELECT 1 FROM deals d WHERE d.listing_id = l.id AND d.status <> 'cancelled')
                  UNION ALL
                  SELECT l.id, l.status, 'listed_with_live_deal'
                  FROM listings l
                  WHERE l.status = 'listed'
                    AND EXISTS (SELECT 1 FROM deals d WHERE d.listing_id = l.id AND d.status <> 'cancelled')`,
		},
		{
			Name: "O4_ledger_identity",
			SQL: `SELECT id, total_value, paid_amount, remaining_amount FROM contracts
                  WHERE remaining_amount <> total_value - paid_amount
                     OR paid_amount < 0 OR paid_amount > total_value`,
		},
		{
			Name: "O5_receipts_match_ledger",
			SQL: `SELECT c.id, c.paid_amount, c.deposit_amount, COALESCE(v.total, 0) AS confirmed
                  FROM contracts c
                  LEFT JOIN (
                      SELECT contract_id, SUM(amount) AS total FROM vouchers
                      WHERE type = 'receipt' AND status = 'confirmed'
                      GROUP BY contract_id
                  ) v ON v.contract_id = c.id
                  WHERE c.paid_amount - c.deposit_amount <> COALESCE(v.total, 0)`,
		},
		{
			Name: "O6_cancelled_deal_has_reason",
			SQL: `SELECT id FROM deals
                  WHERE status = 'cancelled' AND (cancel_reason IS NULL OR cancel_reason = '')`,
		},
		{
			Name: "O7_outbox_not_stale",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name when every invariant holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
