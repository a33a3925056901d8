// Package progression содержит таблицы прогрессии: лестницу уровней
// и каталог бейджей. Таблицы неизменяемы и передаются явно, чтобы
// в тестах их можно было подменять.
package progression

import "github.com/mmeshcher/hustlehub-system/internal/model"

// BadgeSpec описывает конфигурацию бейджа в каталоге.
type BadgeSpec struct {
	Name        string
	Description string
	Icon        string
	Type        model.BadgeType
}

// Table объединяет пороги уровней и каталог бейджей уровня.
// Уровень N достигается при суммарном опыте не меньше Thresholds[N-1].
type Table struct {
	Thresholds  []int64
	LevelBadges []BadgeSpec
}

// Default возвращает штатную таблицу прогрессии платформы: двадцать
// уровней и по одному бейджу на уровень.
func Default() *Table {
	return &Table{
		Thresholds: []int64{
			0, 100, 250, 400, 600, 850, 1100, 1400, 1800, 2250,
			2750, 3300, 3900, 4550, 5250, 6000, 6800, 7650, 8550, 9500,
		},
		LevelBadges: []BadgeSpec{
			{Name: "Rookie", Description: "Just getting started. Welcome to HustleHub!", Icon: "🐣", Type: model.BadgeTypeLevel},
			{Name: "Hustle Initiate", Description: "First steps on the hustle path.", Icon: "🎯", Type: model.BadgeTypeLevel},
			{Name: "Skill Sprinter", Description: "Moving fast and learning quickly.", Icon: "🚀", Type: model.BadgeTypeLevel},
			{Name: "Task Tackler", Description: "Completed key tasks like a pro.", Icon: "🔧", Type: model.BadgeTypeLevel},
			{Name: "Smart Hustler", Description: "Mastered the basics.", Icon: "🧩", Type: model.BadgeTypeLevel},
			{Name: "Certified Doer", Description: "Gained trust from clients.", Icon: "🎓", Type: model.BadgeTypeLevel},
			{Name: "Work Warrior", Description: "Reliable and consistent service provider.", Icon: "🛠️", Type: model.BadgeTypeLevel},
			{Name: "Pro Performer", Description: "Your name is getting known.", Icon: "🏆", Type: model.BadgeTypeLevel},
			{Name: "Local Legend", Description: "Dominating your area with skill.", Icon: "🔥", Type: model.BadgeTypeLevel},
			{Name: "Trusted Hustler", Description: "Excellent ratings and reviews.", Icon: "⭐", Type: model.BadgeTypeLevel},
			{Name: "Efficiency Expert", Description: "Fast, efficient, and on time.", Icon: "⚡", Type: model.BadgeTypeLevel},
			{Name: "Skill Barter Champ", Description: "Actively exchanging services with great results.", Icon: "🧠", Type: model.BadgeTypeLevel},
			{Name: "Client Magnet", Description: "Clients keep coming back.", Icon: "🧲", Type: model.BadgeTypeLevel},
			{Name: "Consistency King/Queen", Description: "You've never missed a deadline.", Icon: "🦾", Type: model.BadgeTypeLevel},
			{Name: "5-Star Streak", Description: "Maintained multiple 5-star ratings in a row.", Icon: "💎", Type: model.BadgeTypeLevel},
			{Name: "Hustle Architect", Description: "Built an elite reputation and XP.", Icon: "🧱", Type: model.BadgeTypeLevel},
			{Name: "Elite Hustler", Description: "Among the top 10% on the platform.", Icon: "🥇", Type: model.BadgeTypeLevel},
			{Name: "Hustler Royalty", Description: "Admired, respected, and referenced by peers.", Icon: "👑", Type: model.BadgeTypeLevel},
			{Name: "Hustle Guardian", Description: "Helping grow the community and upholding platform values.", Icon: "🛡️", Type: model.BadgeTypeLevel},
			{Name: "Hustle Legend", Description: "You are now the face of HustleHub.", Icon: "🌟", Type: model.BadgeTypeLevel},
		},
	}
}

// AchievementBadges возвращает штатный набор бейджей достижений.
// Выдаются не по уровню, а по отдельным правилам платформы.
func AchievementBadges() []BadgeSpec {
	return []BadgeSpec{
		{Name: "Top Rated Freelancer", Description: "Maintain a 5-star rating across 10+ jobs", Icon: "⭐", Type: model.BadgeTypeAchievement},
		{Name: "Job Completionist", Description: "Successfully complete 25 jobs", Icon: "✅", Type: model.BadgeTypeAchievement},
		{Name: "Category Expert", Description: "Complete 10 jobs in the same category", Icon: "🎯", Type: model.BadgeTypeAchievement},
		{Name: "Community Helper", Description: "Receive 5 helpful votes in the Skill Barter exchange", Icon: "🤝", Type: model.BadgeTypeAchievement},
	}
}

// MaxLevel возвращает последний определённый уровень лестницы.
func (t *Table) MaxLevel() int {
	return len(t.Thresholds)
}

// LevelForXP возвращает наибольший уровень L, для которого
// xp >= Thresholds[L-1]. Результат ограничен длиной лестницы;
// опыт сверх последнего порога уровня не добавляет.
func (t *Table) LevelForXP(xp int64) int {
	level := 1
	for level < len(t.Thresholds) && xp >= t.Thresholds[level] {
		level++
	}
	return level
}

// NextLevelThreshold возвращает порог следующего уровня.
// Для последнего уровня лестницы возвращает false.
func (t *Table) NextLevelThreshold(level int) (int64, bool) {
	if level < 1 || level >= len(t.Thresholds) {
		return 0, false
	}
	return t.Thresholds[level], true
}

// LevelBadge возвращает конфигурацию бейджа указанного уровня.
// Для уровня вне каталога возвращает false: выдача бейджа пропускается,
// сам переход уровня при этом не отменяется.
func (t *Table) LevelBadge(level int) (BadgeSpec, bool) {
	if level < 1 || level > len(t.LevelBadges) {
		return BadgeSpec{}, false
	}
	return t.LevelBadges[level-1], true
}

// LevelAward связывает пройденный уровень с бейджем из каталога.
type LevelAward struct {
	Level int
	Spec  BadgeSpec
}

// CrossedAwards возвращает бейджи за каждый уровень в диапазоне (from, to]:
// скачок с 2-го на 5-й уровень даёт бейджи 3-го, 4-го и 5-го, по одному.
// Уровни без настроенного бейджа пропускаются; при from >= to список пуст.
func (t *Table) CrossedAwards(from, to int) []LevelAward {
	var res []LevelAward
	for lv := from + 1; lv <= to; lv++ {
		spec, ok := t.LevelBadge(lv)
		if !ok {
			continue
		}
		res = append(res, LevelAward{Level: lv, Spec: spec})
	}
	return res
}
