package news

import (
	"github.com/google/uuid"

	"github.com/hitoshi/portal/internal/model"
)

// seededBulletins はフィード未設定時や取得失敗時に表示する既定のニュース。
var seededBulletins = []model.Bulletin{
	{
		Title:    "JS Bank Reports Strong Growth in Q3",
		Summary:  "JS Bank continues its upward trajectory with significant increases in digital banking adoption.",
		Link:     "https://jsbl.com/news/q3-growth",
		Date:     "Oct 24, 2023",
		ImageURL: "https://picsum.photos/seed/bank1/600/400",
	},
	{
		Title:    "New Sustainable Finance Initiative",
		Summary:  "Leading the way in green banking, JS Bank launches a new portfolio of sustainable loan products.",
		Link:     "https://jsbl.com/news/sustainable",
		Date:     "Oct 22, 2023",
		ImageURL: "https://picsum.photos/seed/bank2/600/400",
	},
	{
		Title:    "Security Update: Multi-Factor Authentication",
		Summary:  "Ensuring your data stays safe. All internal systems will now require mandatory MFA by year-end.",
		Link:     "https://jsbl.com/news/security",
		Date:     "Oct 20, 2023",
		ImageURL: "https://picsum.photos/seed/bank3/600/400",
	},
}

func init() {
	for i := range seededBulletins {
		seededBulletins[i].ID = bulletinID(seededBulletins[i].Link)
	}
}

// SeededBulletins は既定のニュースのコピーを返す。
func SeededBulletins() []model.Bulletin {
	out := make([]model.Bulletin, len(seededBulletins))
	copy(out, seededBulletins)
	return out
}

// bulletinID は重複判定キーから安定したIDを作る。
func bulletinID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
