package sources

import (
	"time"

	"ippool/internal/scraper"
)

// DefaultSpecs lists the built-in sources used when no sources file is
// configured.
var DefaultSpecs = []Spec{
	{
		Name:        "kuaidaili",
		Type:        TypeTable,
		URL:         "https://www.kuaidaili.com/free/inha/%d/",
		Pages:       []int{1, 39},
		Row:         "table tbody tr",
		Host:        `td[data-title="IP"]`,
		Port:        `td[data-title="PORT"]`,
		Parallelism: 2,
		Delay:       time.Second,
	},
	{
		Name:        "89ip",
		Type:        TypeTable,
		URL:         "http://www.89ip.cn/index_%d.html",
		Pages:       []int{1, 39},
		Row:         "table.layui-table tbody tr",
		Host:        "td:nth-child(1)",
		Port:        "td:nth-child(2)",
		Parallelism: 4,
	},
	{
		Name:    "89ip-api",
		Type:    TypeRegex,
		URL:     "http://api.89ip.cn/tqdl.html?api=1&num=3000&port=&address=&isp=",
		Pattern: `(\d{1,3}(?:\.\d{1,3}){3}:\d{1,5})`,
		Headers: map[string]string{"Host": "api.89ip.cn"},
	},
	{
		Name: "TheSpeedX-HTTP",
		Type: TypeRaw,
		URL:  "https://raw.githubusercontent.com/TheSpeedX/PROXY-LIST/master/http.txt",
	},
	{
		Name: "monosans-HTTP",
		Type: TypeRaw,
		URL:  "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
	},
	{
		Name: "ProxyScraper-HTTP",
		Type: TypeRaw,
		URL:  "https://raw.githubusercontent.com/ProxyScraper/ProxyScraper/refs/heads/main/http.txt",
	},
}

// Defaults builds the built-in sources.
func Defaults() []scraper.Source {
	srcs, err := Build(DefaultSpecs)
	if err != nil {
		// The built-in list is static; failing here is a programming error.
		panic(err)
	}
	return srcs
}
