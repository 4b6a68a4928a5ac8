package application

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/apperror"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// AccountZone は口座サービスのゾーン名
const AccountZone = "AccountService"

var accountErrors = apperror.Map(
	apperror.Rule{Target: transaction.ErrSerializationFailure, Status: http.StatusConflict, Code: "SERIALIZATION_FAILURE",
		Message: "同時に更新されたため処理できませんでした。再試行してください"},
	apperror.Rule{Target: account.ErrInsufficientFunds, Status: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_FUNDS"},
	apperror.Rule{Target: account.ErrAccountNotFound, Status: http.StatusNotFound, Code: "ACCOUNT_NOT_FOUND"},
	apperror.Rule{Target: account.ErrInvalidAmount, Status: http.StatusBadRequest, Code: "INVALID_AMOUNT"},
	apperror.Rule{Target: account.ErrSameAccount, Status: http.StatusBadRequest, Code: "SAME_ACCOUNT"},
)

var accountTable = transactional.Table{
	"OpenAccount": {
		Handle:        transactional.HandleExplicit,
		RollbackError: accountErrors,
	},
	"Charge": {
		Handle:        transactional.HandleExplicit,
		RollbackError: accountErrors,
	},
	"TransferFunds": {
		Isolation:     transaction.Serializable,
		Handle:        transactional.HandleExplicit,
		RollbackError: accountErrors,
	},
}

// AccountService は口座残高を扱う
type AccountService struct {
	repo  account.Repository
	audit *AuditService

	openAccount   transactional.Func[OpenAccountInput, *account.Account]
	charge        transactional.Func[ChargeInput, *account.Account]
	transferFunds transactional.Func[TransferInput, *TransferResult]
}

// NewAccountService はゾーンを登録して AccountService を作成する
func NewAccountService(ic *transactional.Interceptor, repo account.Repository, audit *AuditService) (*AccountService, error) {
	s := &AccountService{repo: repo, audit: audit}
	if err := ic.Registry().RegisterZone(s, accountTable); err != nil {
		return nil, err
	}
	s.openAccount = transactional.Bind(ic, s, "OpenAccount", s.doOpenAccount)
	s.charge = transactional.Bind(ic, s, "Charge", s.doCharge)
	s.transferFunds = transactional.Bind(ic, s, "TransferFunds", s.doTransferFunds)
	return s, nil
}

func (s *AccountService) ZoneName() string { return AccountZone }

type OpenAccountInput struct {
	Owner          string
	InitialBalance int
}

type ChargeInput struct {
	AccountID string
	Amount    int
}

type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        int
}

type TransferResult struct {
	From *account.Account
	To   *account.Account
}

func (s *AccountService) OpenAccount(ctx context.Context, input OpenAccountInput) (*account.Account, error) {
	return s.openAccount(ctx, nil, input)
}

// Charge は残高から引き落とす。実行中のトランザクションがあれば参加する
func (s *AccountService) Charge(ctx context.Context, h transaction.Handle, input ChargeInput) (*account.Account, error) {
	return s.charge(ctx, h, input)
}

// TransferFunds は SERIALIZABLE で送金する
// 同じ口座への同時送金の片方は SERIALIZATION_FAILURE になる
func (s *AccountService) TransferFunds(ctx context.Context, input TransferInput) (*TransferResult, error) {
	return s.transferFunds(ctx, nil, input)
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	return s.repo.GetByID(ctx, nil, id)
}

func (s *AccountService) doOpenAccount(ctx context.Context, h transaction.Handle, input OpenAccountInput) (*account.Account, error) {
	a := account.NewAccount(input.Owner, input.InitialBalance)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, h, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountService) doCharge(ctx context.Context, h transaction.Handle, input ChargeInput) (*account.Account, error) {
	a, err := s.repo.GetByID(ctx, h, input.AccountID)
	if err != nil {
		return nil, err
	}
	if err := a.Withdraw(input.Amount); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBalance(ctx, h, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountService) doTransferFunds(ctx context.Context, h transaction.Handle, input TransferInput) (*TransferResult, error) {
	if input.FromAccountID == input.ToAccountID {
		return nil, account.ErrSameAccount
	}

	if s.audit != nil {
		if _, err := s.audit.Record(ctx, RecordAuditInput{
			Subject: "account:" + input.FromAccountID,
			Action:  "transfer_requested",
			Detail:  fmt.Sprintf("to=%s amount=%d", input.ToAccountID, input.Amount),
		}); err != nil {
			logger.FromContext(ctx).Warn("監査ログを記録できません", zap.Error(err))
		}
	}

	from, err := s.repo.GetByID(ctx, h, input.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.repo.GetByID(ctx, h, input.ToAccountID)
	if err != nil {
		return nil, err
	}
	if err := from.Withdraw(input.Amount); err != nil {
		return nil, err
	}
	if err := to.Deposit(input.Amount); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBalance(ctx, h, from); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBalance(ctx, h, to); err != nil {
		return nil, err
	}
	return &TransferResult{From: from, To: to}, nil
}
