package user

import (
	"context"

	"github.com/trezcool/shule/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose side effects (emails) run synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			logger:  logger,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
