package catalog

import "context"

type (
	Storage interface {
		CreateService(ctx context.Context, service Service) (*Service, error)
		GetService(ctx context.Context, criteria GetCriteria) (*Service, error)
		UpdateService(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Service, error)
		ListServices(ctx context.Context, criteria ListCriteria) ([]*Service, error)
	}
)
