package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/accounts"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// CoordinatorDeps carries the stores the deletion coordinator composes.
type CoordinatorDeps struct {
	Pool     *pgxpool.Pool
	Profiles accounts.ProfileStore
	AWS      *aws.Config
	Metrics  *metrics.CascadeMetrics
	Logger   *logging.Logger
}

// BuildCoordinator wires user deletion. Blob cleanup needs MEDIA_BUCKET and is skipped
// when unset. Identity deletion needs COGNITO_USER_POOL_ID; without it every deletion
// fails at the identity phase and profiles are left in place.
func BuildCoordinator(cfg *appconfig.Config, deps CoordinatorDeps) *accounts.Coordinator {
	ccfg := accounts.CoordinatorConfig{
		Dependents: accounts.NewBatchDeleter(deps.Pool, cfg.CascadeBatchSize),
		Profiles:   deps.Profiles,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	}
	ccfg.Blobs, ccfg.Identity = awsAccountStores(cfg, deps.AWS)
	if ccfg.Identity == nil && deps.Logger != nil {
		deps.Logger.Warn("COGNITO_USER_POOL_ID not set, user deletion will fail at the identity phase")
	}
	return accounts.NewCoordinator(ccfg)
}

// awsAccountStores returns untyped nils for stores that are not configured, so the
// coordinator's nil checks see them as absent.
func awsAccountStores(cfg *appconfig.Config, awsCfg *aws.Config) (accounts.BlobCleaner, accounts.IdentityStore) {
	if awsCfg == nil {
		return nil, nil
	}
	var blobs accounts.BlobCleaner
	if cleaner := accounts.NewS3BlobCleaner(s3.NewFromConfig(*awsCfg), cfg.MediaBucket); cleaner != nil {
		blobs = cleaner
	}
	var identity accounts.IdentityStore
	if store := accounts.NewCognitoIdentityStore(cognitoidentityprovider.NewFromConfig(*awsCfg), cfg.CognitoUserPoolID); store != nil {
		identity = store
	}
	return blobs, identity
}
