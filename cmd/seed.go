package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	internalApp "github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/dao"
	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/upgrade"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// SeedContact 一条种子联系人
// LinkedIndex 指向同一文件中更早的一条记录，仅次记录使用
type SeedContact struct {
	Email          *string `json:"email"`
	PhoneNumber    *string `json:"phoneNumber"`
	LinkPrecedence string  `json:"linkPrecedence"`
	LinkedIndex    *int    `json:"linkedIndex,omitempty"`
}

// defaultSeedFixtures 一个带次记录的主记录加两个独立主记录
const defaultSeedFixtures = `[
  {"email": "lorraine@hillvalley.edu", "phoneNumber": "123456", "linkPrecedence": "primary"},
  {"email": "mcfly@hillvalley.edu", "phoneNumber": "123456", "linkPrecedence": "secondary", "linkedIndex": 0},
  {"email": "george@hillvalley.edu", "phoneNumber": "919191", "linkPrecedence": "primary"},
  {"email": "biffsucks@hillvalley.edu", "phoneNumber": "717171", "linkPrecedence": "primary"}
]`

var errSeedInvalid = errors.New("invalid seed fixture")

// ParseSeedFixtures 解析并校验种子数据
func ParseSeedFixtures(data []byte) ([]SeedContact, error) {
	var fixtures []SeedContact
	if err := sonic.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	for i, f := range fixtures {
		if f.Email == nil && f.PhoneNumber == nil {
			return nil, fmt.Errorf("%w #%d: email or phoneNumber required", errSeedInvalid, i)
		}
		switch domain.LinkPrecedence(f.LinkPrecedence) {
		case domain.LinkPrimary:
			if f.LinkedIndex != nil {
				return nil, fmt.Errorf("%w #%d: primary cannot have linkedIndex", errSeedInvalid, i)
			}
		case domain.LinkSecondary:
			if f.LinkedIndex == nil || *f.LinkedIndex < 0 || *f.LinkedIndex >= i {
				return nil, fmt.Errorf("%w #%d: secondary needs linkedIndex of an earlier fixture", errSeedInvalid, i)
			}
		default:
			return nil, fmt.Errorf("%w #%d: linkPrecedence %q", errSeedInvalid, i, f.LinkPrecedence)
		}
	}
	return fixtures, nil
}

// SeedContacts 在一个事务中写入种子数据，返回写入的联系人
// 记录的 createdAt 按文件顺序递增，保证主记录最早
func SeedContacts(ctx context.Context, repo domain.ContactRepository, fixtures []SeedContact, reset bool) ([]*domain.Contact, error) {
	out := make([]*domain.Contact, 0, len(fixtures))
	base := time.Now().Truncate(time.Second)

	err := repo.Transaction(ctx, func(tx domain.ContactRepository) error {
		if reset {
			if err := tx.Reset(ctx); err != nil {
				return fmt.Errorf("reset contacts: %w", err)
			}
		}
		for i, f := range fixtures {
			c := &domain.Contact{
				Email:          f.Email,
				PhoneNumber:    f.PhoneNumber,
				LinkPrecedence: domain.LinkPrecedence(f.LinkPrecedence),
				CreatedAt:      base.Add(time.Duration(i) * time.Second),
			}
			if f.LinkedIndex != nil {
				parent := out[*f.LinkedIndex].ID
				c.LinkedID = &parent
			}
			saved, err := tx.Insert(ctx, c)
			if err != nil {
				return fmt.Errorf("insert fixture #%d: %w", i, err)
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func init() {
	var (
		configPath  string
		fixturePath string
		reset       bool
	)

	seedCmd := &cobra.Command{
		Use:   "seed [-c config_file] [-f fixtures.json] [--reset]",
		Short: "Load sample contacts into the database",
		Run: func(cmd *cobra.Command, args []string) {
			data := []byte(defaultSeedFixtures)
			if fixturePath != "" {
				b, err := os.ReadFile(fixturePath)
				if err != nil {
					fmt.Printf("Failed to read fixtures: %v\n", err)
					os.Exit(1)
				}
				data = b
			}
			fixtures, err := ParseSeedFixtures(data)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}

			appConfig, lg, err := loadConfigAndLogger(configPath)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			db, err := openDatabase(appConfig)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			if err := upgrade.Execute(db, lg, internalApp.Version); err != nil {
				fmt.Printf("Upgrade failed: %v\n", err)
				os.Exit(1)
			}

			dbConfig := appConfig.GetDatabaseConfig()
			repo := dao.NewContactRepository(dao.New(db, context.Background(),
				dao.WithConfig(&dbConfig),
				dao.WithLogger(lg),
			))

			saved, err := SeedContacts(cmd.Context(), repo, fixtures, reset)
			if err != nil {
				lg.Error("seed failed", zap.Error(err))
				fmt.Printf("Seed failed: %v\n", err)
				os.Exit(1)
			}
			lg.Info("seed finished", zap.Int("contacts", len(saved)), zap.Bool("reset", reset))
			fmt.Printf("Seeded %d contacts\n", len(saved))
		},
	}

	rootCmd.AddCommand(seedCmd)
	fs := seedCmd.Flags()
	fs.StringVarP(&configPath, "config", "c", "", "config file path")
	fs.StringVarP(&fixturePath, "file", "f", "", "fixtures json file, defaults to the built-in sample contacts")
	fs.BoolVar(&reset, "reset", false, "delete all contacts before seeding")
}
