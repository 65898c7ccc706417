package dispatch

import "fmt"

// Operation is an abstract capability requested of a source
type Operation string

const (
	Search               Operation = "search"
	ResolvePlayableURL   Operation = "url"
	ResolveLyric         Operation = "lyric"
	ResolveCover         Operation = "pic"
	ResolveRankingList   Operation = "ranking_list"
	ResolveRankingDetail Operation = "ranking_detail"
)

// ActionTableVersion identifies the script protocol the table below speaks
const ActionTableVersion = "lx-2.0"

// Action names what a script calls an operation under each convention
type Action struct {
	Handler string // action passed to an lx.on('request') handler
	Export  string // global function name
}

var actions = map[Operation]Action{
	Search:               {Handler: "musicSearch", Export: "search"},
	ResolvePlayableURL:   {Handler: "musicUrl", Export: "getMusicUrl"},
	ResolveLyric:         {Handler: "lyric", Export: "getLyric"},
	ResolveCover:         {Handler: "pic", Export: "getPic"},
	ResolveRankingList:   {Handler: "getTopList", Export: "getTopList"},
	ResolveRankingDetail: {Handler: "board", Export: "getTopListDetail"},
}

// Operations lists every operation in the action table
func Operations() []Operation {
	return []Operation{Search, ResolvePlayableURL, ResolveLyric, ResolveCover, ResolveRankingList, ResolveRankingDetail}
}

// ActionFor translates op into script action names
func ActionFor(op Operation) (Action, error) {
	a, ok := actions[op]
	if !ok {
		return Action{}, fmt.Errorf("unknown operation %q", op)
	}
	return a, nil
}

// ParseOperation accepts an operation name or either of its action names
func ParseOperation(name string) (Operation, error) {
	for op, a := range actions {
		if string(op) == name || a.Handler == name || a.Export == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}

func (o Operation) String() string { return string(o) }
