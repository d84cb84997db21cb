package postgres

import (
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
)

var (
	_ ledger.Store           = (*LedgerStore)(nil)
	_ ledger.HistoryStore    = (*HistoryStore)(nil)
	_ practice.HistoryReader = (*HistoryStore)(nil)
)
