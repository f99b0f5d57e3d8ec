package database

// schema is the single source of truth for the database layout.
// Timestamps are stored as RFC3339 text; JSON payloads (strategy parameters,
// optimization metrics) are stored as text columns.
const schema = `
CREATE TABLE IF NOT EXISTS assets (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol        TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    yahoo_symbol  TEXT NOT NULL DEFAULT '',
    asset_class   TEXT NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategies (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL UNIQUE,
    description   TEXT NOT NULL DEFAULT '',
    parameters    TEXT NOT NULL DEFAULT '{}',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_optimizations (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy_id   INTEGER NOT NULL REFERENCES strategies(id),
    parameters    TEXT NOT NULL,
    metrics       TEXT NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategy_optimizations_strategy
    ON strategy_optimizations(strategy_id, created_at);

CREATE TABLE IF NOT EXISTS portfolios (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE,
    description     TEXT NOT NULL DEFAULT '',
    initial_capital REAL NOT NULL DEFAULT 10000.0,
    current_value   REAL NOT NULL DEFAULT 0.0,
    risk_tolerance  REAL NOT NULL DEFAULT 0.5,
    is_active       INTEGER NOT NULL DEFAULT 1,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_strategies (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id  INTEGER NOT NULL REFERENCES portfolios(id),
    strategy_id   INTEGER NOT NULL REFERENCES strategies(id),
    allocation    REAL NOT NULL DEFAULT 0.0,
    is_active     INTEGER NOT NULL DEFAULT 1,
    UNIQUE(portfolio_id, strategy_id)
);

CREATE TABLE IF NOT EXISTS portfolio_assets (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id        INTEGER NOT NULL REFERENCES portfolios(id),
    asset_id            INTEGER NOT NULL REFERENCES assets(id),
    quantity            REAL NOT NULL DEFAULT 0.0,
    average_price       REAL NOT NULL DEFAULT 0.0,
    current_price       REAL NOT NULL DEFAULT 0.0,
    target_allocation   REAL NOT NULL DEFAULT 0.0,
    current_allocation  REAL NOT NULL DEFAULT 0.0,
    last_rebalanced     TEXT,
    UNIQUE(portfolio_id, asset_id)
);

CREATE TABLE IF NOT EXISTS trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id  INTEGER NOT NULL REFERENCES portfolios(id),
    asset_id      INTEGER NOT NULL REFERENCES assets(id),
    timestamp     TEXT NOT NULL,
    order_type    TEXT NOT NULL DEFAULT 'market',
    side          TEXT NOT NULL,
    quantity      REAL NOT NULL,
    price         REAL NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    order_id      TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades(portfolio_id, timestamp);

CREATE TABLE IF NOT EXISTS performance_metrics (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id  INTEGER NOT NULL REFERENCES portfolios(id),
    timestamp     TEXT NOT NULL,
    total_return  REAL NOT NULL DEFAULT 0.0,
    daily_return  REAL NOT NULL DEFAULT 0.0,
    sharpe_ratio  REAL NOT NULL DEFAULT 0.0,
    max_drawdown  REAL NOT NULL DEFAULT 0.0,
    volatility    REAL NOT NULL DEFAULT 0.0,
    win_rate      REAL NOT NULL DEFAULT 0.0,
    current_value REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_performance_metrics_portfolio
    ON performance_metrics(portfolio_id, timestamp);
`
