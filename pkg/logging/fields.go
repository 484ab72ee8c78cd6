package logging

import "go.uber.org/zap"

func Component(name string) zap.Field { return zap.String("component", name) }
func UserID(id string) zap.Field      { return zap.String("user_id", id) }
func Mode(mode string) zap.Field      { return zap.String("account_mode", mode) }
func Symbol(symbol string) zap.Field  { return zap.String("symbol", symbol) }
func OrderID(id string) zap.Field     { return zap.String("order_id", id) }
func PositionID(id string) zap.Field  { return zap.String("position_id", id) }
func Side(side string) zap.Field      { return zap.String("side", side) }
func Price(p float64) zap.Field       { return zap.Float64("price", p) }
func Quantity(q float64) zap.Field    { return zap.Float64("quantity", q) }
func Balance(b float64) zap.Field     { return zap.Float64("balance", b) }
func Key(k string) zap.Field          { return zap.String("key", k) }
func Collection(c string) zap.Field   { return zap.String("collection", c) }
func RequestID(id string) zap.Field   { return zap.String("request_id", id) }
func Attempt(n int) zap.Field         { return zap.Int("attempt", n) }
