package service

import (
	"net/url"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"KayaAttend/internal/model"
	pkgerrors "KayaAttend/pkg/errors"
)

// SiteRegistry 只读的站点表，可以被任意 goroutine 共享
type SiteRegistry struct {
	sites  []model.Site
	bySlug map[string]model.Site
}

var (
	siteRegistry *SiteRegistry
	siteOnce     sync.Once
)

func Sites() *SiteRegistry {
	siteOnce.Do(func() {
		siteRegistry = NewSiteRegistry(model.DefaultSites)
	})

	return siteRegistry
}

func NewSiteRegistry(sites []model.Site) *SiteRegistry {
	r := &SiteRegistry{
		sites:  make([]model.Site, len(sites)),
		bySlug: make(map[string]model.Site, len(sites)),
	}
	copy(r.sites, sites)

	for _, site := range r.sites {
		r.bySlug[Slugify(site.Name)] = site
	}

	return r
}

// List 按固定顺序返回站点，返回值是副本
func (r *SiteRegistry) List() []model.Site {
	out := make([]model.Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// Resolve 根据 slug 查找站点，编码和未编码的 slug 都接受
func (r *SiteRegistry) Resolve(slug string) (model.Site, error) {
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}

	site, ok := r.bySlug[Slugify(slug)]
	if !ok {
		return model.Site{}, pkgerrors.SiteNotFound
	}

	return site, nil
}

// Slugify 名称转小写，连续空白折叠为一个 "-"
func Slugify(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))

	inSpace := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte('-')
			inSpace = false
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// SitePath 站点表单页面的路径（百分号编码）
func SitePath(site model.Site) string {
	return "/" + url.PathEscape(Slugify(site.Name))
}
