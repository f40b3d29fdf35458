package postgres

// BuildGetKittyHistory exposes the kitty history query to external tests.
var BuildGetKittyHistory = buildGetKittyHistory
