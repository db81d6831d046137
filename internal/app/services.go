package app

import (
	"os"
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/auth"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/gateway"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/repo"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services holds all application services
type Services struct {
	DB                 *gorm.DB
	AuthService        *auth.Service
	UserRepo           *repo.UserRepository
	ConversationRepo   *repo.ConversationRepository
	QueueRepo          *repo.QueueRepository
	CampaignRepo       *repo.CampaignRepository
	Gateway            *gateway.Client
	AuditPublisher     services.AuditPublisher
	AssignmentService  *services.AssignmentService
	CampaignDispatcher *services.CampaignDispatcher
	WarmupService      *services.WarmupService
}

// NewServices creates a new services container
func NewServices(db *gorm.DB) *Services {
	// Initialize repositories
	userRepo := repo.NewUserRepository(db)
	conversationRepo := repo.NewConversationRepository(db)
	queueRepo := repo.NewQueueRepository(db)
	campaignRepo := repo.NewCampaignRepository(db)

	// Initialize services
	authService := auth.NewService(userRepo)
	gatewayClient := gateway.NewClientFromEnv()

	// Audit publishing is optional, a missing broker must not block the engine
	var auditPublisher services.AuditPublisher
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL != "" {
		exchange := os.Getenv("AMQP_AUDIT_EXCHANGE")
		if exchange == "" {
			exchange = "whats-suite.audit"
		}
		publisher, err := services.NewAMQPAuditPublisher(amqpURL, exchange)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect audit publisher, continuing without it")
			auditPublisher = services.NopAuditPublisher{}
		} else {
			log.Info().Str("exchange", exchange).Msg("Audit publisher connected")
			auditPublisher = publisher
		}
	} else {
		log.Info().Msg("AMQP_URL not set, audit publishing disabled")
		auditPublisher = services.NopAuditPublisher{}
	}

	assignmentService := services.NewAssignmentService(conversationRepo, queueRepo, auditPublisher)
	campaignDispatcher := services.NewCampaignDispatcher(campaignRepo, gatewayClient, auditPublisher)

	warmupInterval := 15 * time.Minute
	if raw := os.Getenv("WARMUP_CYCLE_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			warmupInterval = parsed
		}
	}
	warmupPeer := os.Getenv("WARMUP_PEER_CONTACT")
	if warmupPeer == "" {
		warmupPeer = "status@broadcast"
	}
	warmupService := services.NewWarmupService(gatewayClient, campaignRepo, warmupInterval, warmupPeer)

	return &Services{
		DB:                 db,
		AuthService:        authService,
		UserRepo:           userRepo,
		ConversationRepo:   conversationRepo,
		QueueRepo:          queueRepo,
		CampaignRepo:       campaignRepo,
		Gateway:            gatewayClient,
		AuditPublisher:     auditPublisher,
		AssignmentService:  assignmentService,
		CampaignDispatcher: campaignDispatcher,
		WarmupService:      warmupService,
	}
}
