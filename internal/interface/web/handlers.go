package web

import (
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/interface/web/types"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *service) health(c *gin.Context) {
	workers := s.appSvc.Workers()
	resp := types.Health{
		Ready:   s.appSvc.Ready(),
		Version: s.version,
		Workers: make([]types.Worker, 0, len(workers)),
	}
	for _, w := range workers {
		resp.Workers = append(resp.Workers, types.Worker{
			Name:      w.Name,
			State:     string(w.State),
			Restarts:  w.Restarts,
			LastError: w.LastError,
			Stalled:   w.Stalled,
		})
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *service) getSession(c *gin.Context) {
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toSession(s.appSvc.Session(), price))
}

func (s *service) connect(c *gin.Context) {
	info, err := s.appSvc.Connect(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toSession(info, price))
}

func (s *service) disconnect(c *gin.Context) {
	s.appSvc.Disconnect()
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toSession(s.appSvc.Session(), price))
}

func (s *service) refresh(c *gin.Context) {
	snapshot, err := s.appSvc.Refresh(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toTaskList(snapshot, price))
}

func (s *service) listTasks(c *gin.Context) {
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toTaskList(s.appSvc.Tasks(), price))
}

func (s *service) getTask(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.appSvc.Task(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	price := s.appSvc.Price(c.Request.Context())
	c.JSON(http.StatusOK, toTask(task, price))
}

func (s *service) createTask(c *gin.Context) {
	var req types.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.NewValidationError("", "malformed request body: %s", err))
		return
	}

	var amount *big.Int
	var err error
	switch {
	case req.Amount != "":
		amount, err = parseSmallestUnit(req.Amount)
	case req.AmountNative != "":
		amount, err = utils.ParseAmount(req.AmountNative, utils.NativeDecimals)
		if err != nil {
			err = domain.NewValidationError("amount", "%s", err)
		}
	default:
		err = domain.NewValidationError("amount", "missing")
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	tx, err := s.appSvc.CreateTask(c.Request.Context(), req.MaxParticipants, amount)
	s.txResult(c, tx, err)
}

func (s *service) allocateReward(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	var req types.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, domain.NewValidationError("", "malformed request body: %s", err))
		return
	}
	amount, err := parseSmallestUnit(req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	tx, err := s.appSvc.AllocateReward(c.Request.Context(), id, req.Recipient, amount)
	s.txResult(c, tx, err)
}

func (s *service) verifyTask(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ack, err := s.appSvc.VerifyTask(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, types.VerifyResponse{
		TaskID:  ack.TaskID,
		Account: ack.Account.Hex(),
		Message: ack.Message,
	})
}

func (s *service) withdraw(c *gin.Context) {
	tx, err := s.appSvc.Withdraw(c.Request.Context())
	s.txResult(c, tx, err)
}

func (s *service) listTransactions(c *gin.Context) {
	txs := s.appSvc.Transactions()
	resp := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, s.toTransaction(tx))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

// streamTransactions pushes every transaction transition as a server-sent
// event until the client goes away.
func (s *service) streamTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	updates := s.appSvc.SubscribeTransactions(ctx)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case update, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("transaction", s.toTransactionEvent(update))
			return true
		}
	})
}

func (s *service) getPrice(c *gin.Context) {
	c.JSON(http.StatusOK, toPrice(s.appSvc.Price(c.Request.Context())))
}

func (s *service) getQuote(c *gin.Context) {
	usd, err := decimal.NewFromString(strings.TrimSpace(c.Query("usd")))
	if err != nil {
		s.fail(c, domain.NewValidationError("usd", "must be a decimal number"))
		return
	}
	quote, err := s.appSvc.Quote(c.Request.Context(), usd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuote(quote))
}

// txResult writes the outcome of a command. A submitted transaction is
// included in the body even when the outcome is failed or unknown.
func (s *service) txResult(c *gin.Context, tx *domain.PendingTransaction, err error) {
	if err == nil {
		t := s.toTransaction(*tx)
		c.JSON(http.StatusOK, types.TransactionResult{Transaction: &t})
		return
	}
	if tx == nil {
		s.fail(c, err)
		return
	}

	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	t := s.toTransaction(*tx)
	c.JSON(status, types.TransactionResult{Transaction: &t, Error: err.Error(), Code: code})
}

func (s *service) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, types.Error{Error: err.Error(), Code: code})
}

func taskID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("task id", "%q is not a task id", c.Param("id"))
	}
	return id, nil
}

func parseSmallestUnit(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, domain.NewValidationError("amount", "%q is not an integer amount", value)
	}
	return amount, nil
}
