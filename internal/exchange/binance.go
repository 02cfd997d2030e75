package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/bftp/internal/config"
	"github.com/skalibog/bftp/pkg/models"
)

const (
	restMainnetURL = "https://fapi.binance.com"
	restTestnetURL = "https://testnet.binancefuture.com"

	balanceAsset = "USDT"
)

// RejectionError отказ биржи в исполнении запроса. Отличается от
// транспортной ошибки: повторять запрос без изменений бессмысленно.
type RejectionError struct {
	Code    int64
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("отказ биржи (код %d): %s", e.Code, e.Message)
}

// IsRejection сообщает, является ли ошибка отказом биржи
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

// Client клиент Binance USDT-M фьючерсов
type Client struct {
	futures *futures.Client
	httpc   *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient создает клиент Binance и проверяет доступность биржи.
// Недоступная биржа делает запуск бессмысленным, ошибка фатальна для
// вызывающей стороны.
func NewClient(ctx context.Context, cfg config.BinanceConfig, logger *zap.Logger) (*Client, error) {
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	baseURL := restMainnetURL
	if cfg.Testnet {
		futuresClient.UseTestnet = true
		baseURL = restTestnetURL
	}

	c := &Client{
		futures: futuresClient,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		logger:  logger.Named("exchange"),
	}

	if err := c.futures.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("биржа недоступна: %w", err)
	}

	c.logger.Info("Подключение к бирже установлено", zap.Bool("testnet", cfg.Testnet))
	return c, nil
}

// HistoricalKlines возвращает сырой JSON исторических свечей публичного
// эндпоинта. Разбором массивов занимается вызывающая сторона.
func (c *Client) HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]byte, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))

	endpoint := c.baseURL + "/fapi/v1/klines?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса свечей: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса исторических свечей %s %s: %w", symbol, interval, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа исторических свечей: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("запрос исторических свечей %s %s отклонен: статус %d, тело %s",
			symbol, interval, resp.StatusCode, body)
	}

	return body, nil
}

// GetBalance возвращает доступный баланс расчетного актива
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := c.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, wrapVenueError("ошибка получения баланса", err)
	}

	for _, b := range balances {
		if b.Asset != balanceAsset {
			continue
		}
		available, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil {
			return decimal.Zero, fmt.Errorf("ошибка разбора баланса %q: %w", b.AvailableBalance, err)
		}
		return available, nil
	}

	return decimal.Zero, fmt.Errorf("баланс актива %s не найден", balanceAsset)
}

// GetPosition возвращает открытую позицию по символу, nil если позиции нет
func (c *Client) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	positions, err := c.futures.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrapVenueError(fmt.Sprintf("ошибка получения позиции %s", symbol), err)
	}

	for _, p := range positions {
		amount, err := decimal.NewFromString(p.PositionAmt)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора объема позиции %q: %w", p.PositionAmt, err)
		}
		if amount.IsZero() {
			continue
		}

		entryPrice, err := decimal.NewFromString(p.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора цены входа %q: %w", p.EntryPrice, err)
		}

		side := models.PositionLong
		if amount.IsNegative() {
			side = models.PositionShort
		}
		return &models.Position{
			Symbol:     symbol,
			Side:       side,
			Quantity:   amount.Abs(),
			EntryPrice: entryPrice,
		}, nil
	}

	return nil, nil
}

// SetLeverage устанавливает плечо по символу
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.futures.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return wrapVenueError(fmt.Sprintf("ошибка установки плеча %s", symbol), err)
	}
	return nil
}

// Execute исполняет сигнал. Вход размещается рыночной заявкой с парой
// защитных заявок тейк-профита и стоп-лосса, закрытие одной рыночной
// заявкой только на уменьшение. Возвращается основная заявка.
// TODO: брать точность цены и количества из фильтров exchangeInfo
func (c *Client) Execute(ctx context.Context, sig models.Signal, quantity decimal.Decimal) (*models.Order, error) {
	qty := quantity.Truncate(3)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("размер позиции %s по %s меньше минимального шага", quantity, sig.Symbol)
	}

	if sig.Type.IsEntry() {
		return c.placeEntry(ctx, sig, qty)
	}
	return c.placeClose(ctx, sig, qty)
}

// placeEntry размещает вход и обе защитные заявки
func (c *Client) placeEntry(ctx context.Context, sig models.Signal, qty decimal.Decimal) (*models.Order, error) {
	side := futures.SideTypeBuy
	exitSide := futures.SideTypeSell
	if sig.Type == models.SignalShortEntry {
		side = futures.SideTypeSell
		exitSide = futures.SideTypeBuy
	}

	clientID := uuid.NewString()
	entry, err := c.futures.NewCreateOrderService().
		Symbol(sig.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return nil, wrapVenueError(fmt.Sprintf("ошибка размещения входа %s", sig.Symbol), err)
	}

	takeProfit := sig.TakeProfit.Round(2)
	_, err = c.futures.NewCreateOrderService().
		Symbol(sig.Symbol).
		Side(exitSide).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(takeProfit.String()).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		c.logger.Error("Вход размещен, но тейк-профит не выставлен: позиция не защищена",
			zap.String("symbol", sig.Symbol),
			zap.Int64("order_id", entry.OrderID),
			zap.Error(err))
		return nil, wrapVenueError(fmt.Sprintf("ошибка размещения тейк-профита %s", sig.Symbol), err)
	}

	stopLoss := sig.StopLoss.Round(2)
	_, err = c.futures.NewCreateOrderService().
		Symbol(sig.Symbol).
		Side(exitSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(stopLoss.String()).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		c.logger.Error("Вход размещен, но стоп-лосс не выставлен: позиция не защищена",
			zap.String("symbol", sig.Symbol),
			zap.Int64("order_id", entry.OrderID),
			zap.Error(err))
		return nil, wrapVenueError(fmt.Sprintf("ошибка размещения стоп-лосса %s", sig.Symbol), err)
	}

	return c.orderFromResponse(entry, sig, qty, false), nil
}

// placeClose размещает рыночную заявку закрытия позиции
func (c *Client) placeClose(ctx context.Context, sig models.Signal, qty decimal.Decimal) (*models.Order, error) {
	side := futures.SideTypeSell
	if sig.Type == models.SignalCloseShort {
		side = futures.SideTypeBuy
	}

	resp, err := c.futures.NewCreateOrderService().
		Symbol(sig.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		ReduceOnly(true).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, wrapVenueError(fmt.Sprintf("ошибка размещения закрытия %s", sig.Symbol), err)
	}

	return c.orderFromResponse(resp, sig, qty, true), nil
}

// orderFromResponse строит заявку из ответа биржи
func (c *Client) orderFromResponse(resp *futures.CreateOrderResponse, sig models.Signal, qty decimal.Decimal, reduceOnly bool) *models.Order {
	execQty := qty
	if parsed, err := decimal.NewFromString(resp.OrigQuantity); err == nil && parsed.IsPositive() {
		execQty = parsed
	}

	price := sig.EntryPrice
	if parsed, err := decimal.NewFromString(resp.Price); err == nil && parsed.IsPositive() {
		price = parsed
	}

	return &models.Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          models.OrderSide(resp.Side),
		Quantity:      execQty,
		Price:         price,
		Status:        string(resp.Status),
		ReduceOnly:    reduceOnly,
	}
}

// wrapVenueError заворачивает отказ биржи в RejectionError, транспортные
// ошибки проходят без изменения типа
func wrapVenueError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &RejectionError{Code: apiErr.Code, Message: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}
