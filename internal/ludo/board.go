package ludo

// Board geometry and rules.
const (
	BoardSize       = 52
	HomeStretch     = 5
	PiecesPerPlayer = 4

	ExitRoll            = 6
	MaxConsecutiveSixes = 3
)

// safePositions are the board cells where a piece cannot be captured.
var safePositions = map[int]bool{
	0: true, 8: true, 13: true, 21: true, 26: true, 34: true, 39: true, 47: true,
}

// Color identifies a player's pieces and determines the start cell.
type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
)

var turnColors = []Color{ColorRed, ColorBlue, ColorGreen, ColorYellow}

// startPosition is the cell a piece enters the board on.
func startPosition(c Color) int {
	switch c {
	case ColorBlue:
		return 13
	case ColorGreen:
		return 26
	case ColorYellow:
		return 39
	default:
		return 0
	}
}

// homeEntry is the last ring cell before the color's home stretch.
func homeEntry(c Color) int {
	return (startPosition(c) + BoardSize - 1) % BoardSize
}

// PieceState is the lifecycle of one piece.
type PieceState string

const (
	PieceHome     PieceState = "home"
	PieceActive   PieceState = "active"
	PieceSafeZone PieceState = "safe_zone"
	PieceFinished PieceState = "finished"
)

// Piece is one of a player's four tokens. Position is a ring cell for active
// pieces and -1 otherwise; StretchPos is the home-stretch cell (0..4) for
// pieces in the stretch.
type Piece struct {
	ID         int        `json:"piece_id"`
	Owner      Color      `json:"owner"`
	State      PieceState `json:"state"`
	Position   int        `json:"position"`
	StretchPos int        `json:"stretch_pos"`
}

// MoveAction is what a candidate move does.
type MoveAction string

const (
	ActionExit        MoveAction = "exit"
	ActionMove        MoveAction = "move"
	ActionEnterSafe   MoveAction = "enter_safe"
	ActionStretchMove MoveAction = "stretch_move"
	ActionFinish      MoveAction = "finish"
)

// MoveOption is one legal move for the current roll.
type MoveOption struct {
	PieceID int        `json:"piece_id"`
	From    int        `json:"from"`
	To      int        `json:"to"`
	Action  MoveAction `json:"action"`
}
