package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
)

const defaultCyberConnectURL = "https://api.cyberconnect.dev/graphql"

const profileQuery = `
	query Profile($address: AddressEVM!) {
		address(address: $address) {
			wallet {
				primaryProfile {
					handle
					metadataInfo { displayName }
					followerCount
					followingCount
					essences { totalCount }
				}
			}
		}
	}
`

// SocialOptions configure the CyberConnect client.
type SocialOptions struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Social reads the wallet's primary CyberConnect profile.
type Social struct {
	url  string
	http *httpDoer
}

// NewSocial constructs the social-graph client.
func NewSocial(opts SocialOptions, logger zerolog.Logger) *Social {
	url := opts.URL
	if url == "" {
		url = defaultCyberConnectURL
	}
	l := logger.With().Str("component", "social").Logger()
	return &Social{
		url: url,
		http: newHTTPDoer(httpOptions{
			Provider: "cyberconnect",
			Timeout:  opts.Timeout,
			Headers:  map[string]string{"X-API-KEY": opts.APIKey},
		}, l),
	}
}

// GetData returns the profile summary; wallets without a profile yield domain.ErrNoData.
func (s *Social) GetData(ctx context.Context, address string, _ chain.Info) (*domain.SocialStats, error) {
	var data struct {
		Address *struct {
			Wallet *struct {
				PrimaryProfile *struct {
					Handle       string `json:"handle"`
					MetadataInfo *struct {
						DisplayName string `json:"displayName"`
					} `json:"metadataInfo"`
					FollowerCount  int `json:"followerCount"`
					FollowingCount int `json:"followingCount"`
					Essences       struct {
						TotalCount int `json:"totalCount"`
					} `json:"essences"`
				} `json:"primaryProfile"`
			} `json:"wallet"`
		} `json:"address"`
	}
	if err := s.http.graphql(ctx, "profile", s.url, profileQuery, map[string]any{"address": address}, &data); err != nil {
		return nil, err
	}
	if data.Address == nil || data.Address.Wallet == nil || data.Address.Wallet.PrimaryProfile == nil {
		return nil, domain.ErrNoData
	}

	p := data.Address.Wallet.PrimaryProfile
	stats := &domain.SocialStats{
		Handle:     p.Handle,
		Followers:  p.FollowerCount,
		Followings: p.FollowingCount,
		Essences:   p.Essences.TotalCount,
	}
	if p.MetadataInfo != nil {
		stats.DisplayName = p.MetadataInfo.DisplayName
	}
	return stats, nil
}
