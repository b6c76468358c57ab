package models

// Hero is one selectable Dota 2 hero.
type Hero struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// heroPool is the static hero table used for pick validation and timeout
// auto-selection. IDs follow the Valve hero ids.
var heroPool = []Hero{
	{1, "Anti-Mage"},
	{2, "Axe"},
	{3, "Bane"},
	{4, "Bloodseeker"},
	{5, "Crystal Maiden"},
	{6, "Drow Ranger"},
	{7, "Earthshaker"},
	{8, "Juggernaut"},
	{9, "Mirana"},
	{10, "Morphling"},
	{11, "Shadow Fiend"},
	{12, "Phantom Lancer"},
	{13, "Puck"},
	{14, "Pudge"},
	{15, "Razor"},
	{16, "Sand King"},
	{17, "Storm Spirit"},
	{18, "Sven"},
	{19, "Tiny"},
	{20, "Vengeful Spirit"},
	{21, "Windranger"},
	{22, "Zeus"},
	{23, "Kunkka"},
	{25, "Lina"},
	{26, "Lion"},
	{27, "Shadow Shaman"},
	{28, "Slardar"},
	{29, "Tidehunter"},
	{30, "Witch Doctor"},
	{31, "Lich"},
	{32, "Riki"},
	{33, "Enigma"},
	{34, "Tinker"},
	{35, "Sniper"},
	{36, "Necrophos"},
	{37, "Warlock"},
	{38, "Beastmaster"},
	{39, "Queen of Pain"},
	{40, "Venomancer"},
	{41, "Faceless Void"},
	{42, "Wraith King"},
	{43, "Death Prophet"},
	{44, "Phantom Assassin"},
	{45, "Pugna"},
	{46, "Templar Assassin"},
	{47, "Viper"},
	{48, "Luna"},
	{49, "Dragon Knight"},
	{50, "Dazzle"},
}

// Heroes returns the full hero pool.
func Heroes() []Hero {
	return heroPool
}

// HeroByID looks up a hero by id.
func HeroByID(id int) (Hero, bool) {
	for _, h := range heroPool {
		if h.ID == id {
			return h, true
		}
	}
	return Hero{}, false
}

// AvailableHeroes returns the hero ids not yet picked or banned in the
// session, in pool order.
func AvailableHeroes(s *DraftSession) []int {
	out := make([]int, 0, len(heroPool))
	for _, h := range heroPool {
		if !s.HeroTaken(h.ID) {
			out = append(out, h.ID)
		}
	}
	return out
}
