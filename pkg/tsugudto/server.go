package tsugudto

// ServerID is the canonical Tsugu backend identifier for a game region.
type ServerID int

const (
	ServerJP ServerID = 0
	ServerEN ServerID = 1
	ServerTW ServerID = 2
	ServerCN ServerID = 3
	ServerKR ServerID = 4
)

// ServerCount is the number of valid region ids; ids are 0..ServerCount-1.
const ServerCount = 5

func (s ServerID) Valid() bool { return s >= ServerJP && s < ServerCount }

// ShortName returns the region code used on the wire (jp/en/tw/cn/kr).
func (s ServerID) ShortName() string {
	switch s {
	case ServerJP:
		return "jp"
	case ServerEN:
		return "en"
	case ServerTW:
		return "tw"
	case ServerCN:
		return "cn"
	case ServerKR:
		return "kr"
	}
	return ""
}

// FullName returns the Chinese display name of the region.
func (s ServerID) FullName() string {
	switch s {
	case ServerJP:
		return "日服"
	case ServerEN:
		return "国际服"
	case ServerTW:
		return "台服"
	case ServerCN:
		return "国服"
	case ServerKR:
		return "韩服"
	}
	return ""
}

// DifficultyID is the canonical Tsugu backend identifier for a chart difficulty.
type DifficultyID int

const (
	DifficultyEasy    DifficultyID = 0
	DifficultyNormal  DifficultyID = 1
	DifficultyHard    DifficultyID = 2
	DifficultyExpert  DifficultyID = 3
	DifficultySpecial DifficultyID = 4
)

const DifficultyCount = 5

func (d DifficultyID) Valid() bool { return d >= DifficultyEasy && d < DifficultyCount }

// Text returns the difficulty name the render backend expects.
func (d DifficultyID) Text() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyNormal:
		return "normal"
	case DifficultyHard:
		return "hard"
	case DifficultyExpert:
		return "expert"
	case DifficultySpecial:
		return "special"
	}
	return ""
}
