package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
)

// URLValidator checks URLs submitted for gallery ingestion
type URLValidator struct {
	allowedSchemes map[string]bool
	// allowedHosts holds exact host names; entries starting with "*." also
	// match any subdomain. Empty means every host is allowed.
	allowedHosts []string
}

// NewURLValidator accepts http and https URLs on any host
func NewURLValidator() *URLValidator {
	return NewURLValidatorWithOptions([]string{"http", "https"}, nil)
}

// NewURLValidatorWithOptions creates a URL validator with custom schemes and hosts
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	v := &URLValidator{allowedSchemes: make(map[string]bool, len(schemes))}
	for _, s := range schemes {
		v.allowedSchemes[strings.ToLower(s)] = true
	}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			v.allowedHosts = append(v.allowedHosts, h)
		}
	}
	return v
}

// ValidateImageURL validates if the provided URL can be fetched as an image
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.allowedSchemes[strings.ToLower(parsedURL.Scheme)] {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	host := parsedURL.Hostname()
	if host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if parsedURL.User != nil {
		return apperrors.NewValidationError("URL must not contain credentials", nil)
	}

	if !v.isHostAllowed(host) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// isHostAllowed matches the host name, without port, against the allow list
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
