package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
)

var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://trash2cash.app/seed"))

// seedID derives a stable identifier so repeated runs hit the same rows.
func seedID(kind, key string) string {
	return uuid.NewSHA1(seedNamespace, []byte(kind+"/"+key)).String()
}

type seedUserStore interface {
	Create(ctx context.Context, user *models.User, worker *models.MunicipalWorker) error
}

type seedVoucherStore interface {
	Create(ctx context.Context, voucher *models.Voucher) error
}

type seedZoneStore interface {
	Create(ctx context.Context, zone *models.Zone) error
}

type seedChallengeStore interface {
	Create(ctx context.Context, challenge *models.Challenge) error
}

// SeedReport counts what a seed run touched.
type SeedReport struct {
	UsersCreated int
	UsersSkipped int
	Vouchers     int
	Zones        int
	Challenges   int
}

// SeedService inserts demo accounts and catalog data. Every insert is idempotent.
type SeedService struct {
	users      seedUserStore
	vouchers   seedVoucherStore
	zones      seedZoneStore
	challenges seedChallengeStore
	logger     *zap.Logger
	now        func() time.Time
	cost       int
}

// NewSeedService constructs the bootstrapper.
func NewSeedService(users seedUserStore, vouchers seedVoucherStore, zones seedZoneStore, challenges seedChallengeStore, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{
		users:      users,
		vouchers:   vouchers,
		zones:      zones,
		challenges: challenges,
		logger:     logger,
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
	}
}

// Run writes the demo data set using password for every demo account.
func (s *SeedService) Run(ctx context.Context, password string) (*SeedReport, error) {
	if len(password) < 6 {
		return nil, errors.New("seed password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	now := s.now().UTC()
	report := &SeedReport{}

	for _, account := range s.demoAccounts(string(hash), now) {
		err := s.users.Create(ctx, account.user, account.worker)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			report.UsersSkipped++
		case err != nil:
			return report, fmt.Errorf("seed user %s: %w", account.user.Email, err)
		default:
			report.UsersCreated++
			s.logger.Info("seeded user", zap.String("email", account.user.Email), zap.String("role", string(account.user.Role)))
		}
	}

	for _, v := range demoVouchers(now) {
		v := v
		if err := s.vouchers.Create(ctx, &v); err != nil {
			return report, fmt.Errorf("seed voucher %s: %w", v.Title, err)
		}
		report.Vouchers++
	}
	for _, z := range demoZones(now) {
		z := z
		if err := s.zones.Create(ctx, &z); err != nil {
			return report, fmt.Errorf("seed zone %s: %w", z.Name, err)
		}
		report.Zones++
	}
	for _, c := range demoChallenges(now) {
		c := c
		if err := s.challenges.Create(ctx, &c); err != nil {
			return report, fmt.Errorf("seed challenge %s: %w", c.Title, err)
		}
		report.Challenges++
	}

	s.logger.Info("seed completed",
		zap.Int("users_created", report.UsersCreated),
		zap.Int("users_skipped", report.UsersSkipped),
		zap.Int("vouchers", report.Vouchers),
		zap.Int("zones", report.Zones),
		zap.Int("challenges", report.Challenges),
	)
	return report, nil
}

type demoAccount struct {
	user   *models.User
	worker *models.MunicipalWorker
}

func (s *SeedService) demoAccounts(hash string, now time.Time) []demoAccount {
	return []demoAccount{
		{user: &models.User{
			ID: seedID("user", "citizen"), Email: "citizen@trash2cash.app", PasswordHash: hash, Name: "Demo Citizen",
			Phone: "9876543210", Role: models.RoleCitizen, IsVerified: true, Active: true, CreatedAt: now,
		}},
		{
			user: &models.User{
				ID: seedID("user", "worker"), Email: "worker@trash2cash.app", PasswordHash: hash, Name: "Demo Worker",
				Phone: "9876543211", Role: models.RoleMunicipalWorker, IsVerified: true, Active: true, CreatedAt: now,
			},
			worker: &models.MunicipalWorker{
				EmployeeID: "MW-0001", Department: "Solid Waste Management", Designation: "Field Verifier",
				AssignedAreas: pq.StringArray{"Indiranagar", "Koramangala"}, IsActive: true,
			},
		},
		{user: &models.User{
			ID: seedID("user", "admin"), Email: "admin@trash2cash.app", PasswordHash: hash, Name: "Demo Admin",
			Phone: "9876543212", Role: models.RoleAdmin, IsVerified: true, Active: true, CreatedAt: now,
		}},
	}
}

func demoVouchers(now time.Time) []models.Voucher {
	until := now.AddDate(1, 0, 0)
	return []models.Voucher{
		{
			ID: seedID("voucher", "food"), Title: "20% off food delivery", Description: "Discount on your next food order",
			PointsCost: 100, Category: models.VoucherFoodDelivery, PartnerName: "QuickBite", ValidUntil: until,
			Terms: "One use per account", IsActive: true, MaxRedemptions: 500, DiscountPercentage: 20, CreatedAt: now,
		},
		{
			ID: seedID("voucher", "transit"), Title: "Metro card top-up", Description: "Rs 50 credited to your metro card",
			PointsCost: 250, Category: models.VoucherTransportation, PartnerName: "City Metro", ValidUntil: until,
			Terms: "Valid on registered cards only", IsActive: true, MaxRedemptions: models.UnlimitedRedemptions, DiscountAmount: 50, CreatedAt: now,
		},
		{
			ID: seedID("voucher", "grocery"), Title: "Grocery cashback", Description: "10% cashback on groceries",
			PointsCost: 400, Category: models.VoucherGrocery, PartnerName: "GreenMart", ValidUntil: until,
			Terms: "Minimum basket Rs 500", IsActive: true, MaxRedemptions: 100, DiscountPercentage: 10, CreatedAt: now,
		},
	}
}

func demoZones(now time.Time) []models.Zone {
	return []models.Zone{
		{
			ID: seedID("zone", "indiranagar"), Name: "Indiranagar Market", Latitude: 12.9784, Longitude: 77.6408, RadiusMeters: 1500,
			Address: "100 Feet Road", City: "Bengaluru", State: "Karnataka", Pincode: "560038",
			WasteLevel: models.WasteLevelHigh, Description: "Dense retail strip", IsActive: true, CreatedAt: now,
		},
		{
			ID: seedID("zone", "koramangala"), Name: "Koramangala Lake Edge", Latitude: 12.9352, Longitude: 77.6245, RadiusMeters: 1200,
			Address: "Koramangala 4th Block", City: "Bengaluru", State: "Karnataka", Pincode: "560034",
			WasteLevel: models.WasteLevelCritical, Description: "Lake shoreline", IsActive: true, CreatedAt: now,
		},
		{
			ID: seedID("zone", "cubbon"), Name: "Cubbon Park", Latitude: 12.9763, Longitude: 77.5929, RadiusMeters: 1000,
			Address: "Kasturba Road", City: "Bengaluru", State: "Karnataka", Pincode: "560001",
			WasteLevel: models.WasteLevelLow, Description: "Public park", IsActive: true, CreatedAt: now,
		},
	}
}

func demoChallenges(now time.Time) []models.Challenge {
	return []models.Challenge{
		{
			ID: seedID("challenge", "plastic-free-month"), Title: "Plastic Free Month", Description: "Collect 10 kg of plastic in 30 days",
			StartDate: now, EndDate: now.AddDate(0, 0, 30), TargetWaste: 10, RewardPoints: 500, Type: models.ChallengeIndividual,
			IsActive: true, OrganizationName: "Trash2Cash", MaxParticipants: models.UnlimitedParticipants, CreatedAt: now,
		},
		{
			ID: seedID("challenge", "lake-cleanup"), Title: "Lake Cleanup Drive", Description: "Community cleanup around city lakes",
			StartDate: now, EndDate: now.AddDate(0, 0, 14), TargetPoints: 5000, RewardPoints: 250, Type: models.ChallengeCommunity,
			IsActive: true, OrganizationName: "Trash2Cash", SponsorName: "GreenMart", MaxParticipants: 200, CreatedAt: now,
		},
	}
}
