package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// adminNets is the parsed form of server.admin_ips. Entries may be single
// addresses or CIDR prefixes.
type adminNets []netip.Prefix

func parseAdminNets(entries []string) adminNets {
	var out adminNets
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return out
}

func (n adminNets) contains(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range n {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// IPWhitelist keeps the admin API to operator hosts. Unparseable entries
// are skipped; an empty or fully invalid list leaves the routes open, the
// admin key still being required.
func IPWhitelist(entries []string) gin.HandlerFunc {
	nets := parseAdminNets(entries)
	return func(c *gin.Context) {
		if len(nets) == 0 || nets.contains(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API is not reachable from " + c.ClientIP()})
	}
}
