package adapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"presenced/internal/domain"
)

// maxControllerBody bounds how much of a controller response is read
const maxControllerBody = 16 << 20

// UniFiConfig holds the controller connection settings
type UniFiConfig struct {
	Hostname           string
	Username           string
	Password           string
	Site               string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// UniFiSource lists associated stations from a UniFi controller
type UniFiSource struct {
	config    UniFiConfig
	transport http.RoundTripper
	logger    zerolog.Logger
}

type unifiStation struct {
	MAC string  `json:"mac"`
	IP  *string `json:"ip"`
}

type unifiMeta struct {
	RC  string `json:"rc"`
	Msg string `json:"msg"`
}

// unifiStationList is the controller envelope. Data stays nil when the
// field is missing or null so that case can be told apart from an empty site.
type unifiStationList struct {
	Meta *unifiMeta      `json:"meta"`
	Data *[]unifiStation `json:"data"`
}

// NewUniFiSource creates a controller client. No connection is made until
// FetchStations is called.
func NewUniFiSource(cfg UniFiConfig, logger zerolog.Logger) *UniFiSource {
	if cfg.Site == "" {
		cfg.Site = "default"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &UniFiSource{
		config: cfg,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // controllers use self-signed certificates
			},
			TLSHandshakeTimeout: cfg.Timeout,
			// Sessions never outlive one cycle
			DisableKeepAlives: true,
		},
		logger: logger,
	}
}

// Name returns the source identifier
func (u *UniFiSource) Name() string {
	return "unifi"
}

// FetchStations logs in with a fresh session, lists the site's stations and
// logs out again. The session is discarded whatever step fails.
func (u *UniFiSource) FetchStations(ctx context.Context) ([]domain.Station, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{
		Transport: u.transport,
		Jar:       jar,
		Timeout:   u.config.Timeout,
	}

	if err := u.login(ctx, client); err != nil {
		return nil, err
	}
	defer u.logout(client)

	return u.listStations(ctx, client)
}

func (u *UniFiSource) baseURL() string {
	return (&url.URL{Scheme: "https", Host: u.config.Hostname}).String()
}

func (u *UniFiSource) login(ctx context.Context, client *http.Client) error {
	body, err := json.Marshal(map[string]string{
		"username": u.config.Username,
		"password": u.config.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL()+"/api/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrControllerUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login: %w", ErrControllerUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: login returned %s", ErrControllerAuthFailed, resp.Status)
	}

	u.logger.Debug().Str("host", u.config.Hostname).Msg("logged into controller")
	return nil
}

func (u *UniFiSource) listStations(ctx context.Context, client *http.Client) ([]domain.Station, error) {
	endpoint := u.baseURL() + "/api/s/" + url.PathEscape(u.config.Site) + "/stat/sta"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrControllerUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: station list: %w", ErrControllerUnreachable, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: station list returned %s", ErrControllerAuthFailed, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: station list returned %s", ErrControllerProtocol, resp.Status)
	}

	var list unifiStationList
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxControllerBody)).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decode station list: %w", ErrControllerProtocol, err)
	}
	if list.Meta != nil && list.Meta.RC != "" && list.Meta.RC != "ok" {
		return nil, fmt.Errorf("%w: station list rc=%q msg=%q", ErrControllerProtocol, list.Meta.RC, list.Meta.Msg)
	}
	if list.Data == nil {
		return nil, fmt.Errorf("%w: station list has no data", ErrControllerProtocol)
	}

	stations := make([]domain.Station, 0, len(*list.Data))
	for _, entry := range *list.Data {
		if entry.MAC == "" {
			continue
		}
		station := domain.Station{HardwareAddress: entry.MAC}
		if entry.IP != nil {
			station.IP = *entry.IP
		}
		stations = append(stations, station)
	}

	u.logger.Debug().Int("stations", len(stations)).Msg("fetched station list")
	return stations, nil
}

// logout ends the session. Errors are only logged.
func (u *UniFiSource) logout(client *http.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), u.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL()+"/api/logout", nil)
	if err != nil {
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		u.logger.Debug().Err(err).Msg("controller logout failed")
		return
	}
	drainAndClose(resp.Body)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxControllerBody))
	_ = body.Close()
}

// IsControllerError reports whether err belongs to the station source taxonomy
func IsControllerError(err error) bool {
	return errors.Is(err, ErrControllerUnreachable) ||
		errors.Is(err, ErrControllerAuthFailed) ||
		errors.Is(err, ErrControllerProtocol)
}
