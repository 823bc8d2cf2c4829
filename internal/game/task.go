package game

// StartTask begins a new round: every submission of the previous task is
// dropped and participants may submit again.
//
// Postcondition: Submissions, ContentByHash, OwnerByIndex and NonRejected are empty;
// ShowIndex is nil; TaskRunning is true.
func (g *Game) StartTask() {
	g.Submissions = nil
	g.ContentByHash = make(map[string]string)
	g.OwnerByIndex = make(map[int]string)
	g.NonRejected = make(map[int]struct{})
	g.ShowIndex = nil
	g.TaskRunning = true
}

// EndTask stops accepting submissions. Existing submissions are kept.
func (g *Game) EndTask() {
	g.TaskRunning = false
}

// Submit appends a submission and returns its index. Identical payloads share
// one ContentByHash entry but each gets its own index and owner.
//
// Precondition: hash is the content hash of payload; owner is a participant id.
// Postcondition: The returned index is len(Submissions)-1 and is non-rejected.
func (g *Game) Submit(hash, payload, owner string) int {
	index := len(g.Submissions)
	g.Submissions = append(g.Submissions, hash)
	if _, seen := g.ContentByHash[hash]; !seen {
		g.ContentByHash[hash] = payload
	}
	g.OwnerByIndex[index] = owner
	g.NonRejected[index] = struct{}{}
	return index
}

// HasSubmission reports whether index refers to a submission of the current task.
func (g *Game) HasSubmission(index int) bool {
	return index >= 0 && index < len(g.Submissions)
}

// Owner returns the connection id that produced submission index.
func (g *Game) Owner(index int) (string, bool) {
	owner, ok := g.OwnerByIndex[index]
	return owner, ok
}

// Reject marks a submission as rejected.
//
// Postcondition: Returns true if index was non-rejected before the call. Rejecting
// an already rejected or unknown index changes nothing.
func (g *Game) Reject(index int) bool {
	if _, ok := g.NonRejected[index]; !ok {
		return false
	}
	delete(g.NonRejected, index)
	return true
}

// Payload returns the base64 payload stored for submission index.
func (g *Game) Payload(index int) (string, bool) {
	if !g.HasSubmission(index) {
		return "", false
	}
	payload, ok := g.ContentByHash[g.Submissions[index]]
	return payload, ok
}

// Payloads returns every submission payload in submission order.
func (g *Game) Payloads() []string {
	out := make([]string, len(g.Submissions))
	for i, hash := range g.Submissions {
		out[i] = g.ContentByHash[hash]
	}
	return out
}

// SetShowIndex selects the submission on display; nil clears it.
//
// Precondition: index is nil or HasSubmission(*index). Returns false without mutation otherwise.
func (g *Game) SetShowIndex(index *int) bool {
	if index != nil && !g.HasSubmission(*index) {
		return false
	}
	if index == nil {
		g.ShowIndex = nil
		return true
	}
	i := *index
	g.ShowIndex = &i
	return true
}

// Stats is the broadcast snapshot derived from a Game.
type Stats struct {
	DisplayCount     int
	ParticipantCount int
	NonRejected      int
	TaskRunning      bool
	ShowIndex        *int
}

// Stats derives the current snapshot.
func (g *Game) Stats() Stats {
	var show *int
	if g.ShowIndex != nil {
		i := *g.ShowIndex
		show = &i
	}
	return Stats{
		DisplayCount:     len(g.Displays),
		ParticipantCount: len(g.Participants),
		NonRejected:      len(g.NonRejected),
		TaskRunning:      g.TaskRunning,
		ShowIndex:        show,
	}
}
