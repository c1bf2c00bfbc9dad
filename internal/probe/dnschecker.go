package probe

import (
	"context"
	"net/url"
)

type DNSChecker struct {
	Resolver Resolver
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{}
}

func (d *DNSChecker) Check(ctx context.Context, target string) CheckResult {
	dns := CheckDNS(ctx, d.Resolver, extractHost(target))
	return CheckResult{
		Name:    "DNS",
		Success: dns.Class == DNSResolves,
		Message: dns.Class,
	}
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
