package config

import (
	"sort"
	"strings"
)

const AllowedOriginsEnvVar = "ALLOWED_ORIGINS"

type Cors struct{ src *source }

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := c.src.file.Cors.AllowedOrigins
	if v := c.src.lookup(AllowedOriginsEnvVar, "", ""); v != "" {
		origins = splitList(v)
	}
	allowed := make(AllowedOrigins, len(origins))
	for _, o := range origins {
		allowed[o] = nullValue{}
	}
	return allowed
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
