package model

// Site 考勤站点，进程启动时由静态列表定义，运行期间只读
type Site struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ColorTag string `json:"color_tag"` // 仅用于展示
}

// DefaultSites 部署的站点列表，顺序即展示顺序
var DefaultSites = []Site{
	{ID: "14", Name: "Fabric Lobethal Art", ColorTag: "violet"},
	{ID: "1", Name: "Garrod Offices", ColorTag: "lime"},
	{ID: "2", Name: "Gumeracha Community Centre", ColorTag: "blue"},
	{ID: "3", Name: "Gumeracha Library", ColorTag: "fuchsia"},
	{ID: "4", Name: "Gumeracha Op Shop", ColorTag: "purple"},
	{ID: "5", Name: "Gumeracha Works Depot", ColorTag: "emerald"},
	{ID: "6", Name: "Heathfield Depot", ColorTag: "orange"},
	{ID: "7", Name: "Nairne Road Council Office", ColorTag: "cyan"},
	{ID: "8", Name: "Norton Summit Community Centre", ColorTag: "pink"},
	{ID: "9", Name: "RSL Kitchen Gumeracha", ColorTag: "sky"},
	{ID: "10", Name: "Stirling Library", ColorTag: "indigo"},
	{ID: "11", Name: "Stirling Offices", ColorTag: "teal"},
	{ID: "12", Name: "Woodside Library", ColorTag: "rose"},
	{ID: "13", Name: "Woodside Offices", ColorTag: "amber"},
}
