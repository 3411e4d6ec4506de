package model

// Bulletin は社内ニュースのカード1件。
type Bulletin struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Link     string `json:"link"`
	Date     string `json:"date"`
	ImageURL string `json:"image,omitempty"`
}

// Document はダウンロード可能な社内資料。MinRole未満の利用者には見せない。
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Size      string `json:"size"`
	MinRole   Role   `json:"minRole"`
	UpdatedAt string `json:"updatedAt"`
}
