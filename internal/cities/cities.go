package cities

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrSampleSize is returned when the requested sample cannot be drawn.
var ErrSampleSize = errors.New("invalid sample size")

// defaultNames is the built-in world city list. Names are Latin-script so they
// resolve through the upstream's city-name query.
var defaultNames = []string{
	"London", "Paris", "Tokyo", "New York", "Sydney", "Berlin", "Rome", "Madrid",
	"Amsterdam", "Vienna", "Prague", "Warsaw", "Moscow", "Istanbul", "Cairo",
	"Dubai", "Mumbai", "Bangkok", "Singapore", "Seoul", "Beijing", "Shanghai",
	"Hong Kong", "Taipei", "Manila", "Jakarta", "Kuala Lumpur",
	"Ho Chi Minh City", "Dhaka", "Karachi", "Lahore", "Tehran", "Baghdad",
	"Riyadh", "Kuwait City", "Doha", "Abu Dhabi", "Muscat", "Sanaa", "Amman",
	"Beirut", "Damascus", "Jerusalem", "Tel Aviv", "Ankara", "Athens", "Sofia",
	"Bucharest", "Budapest", "Zagreb", "Ljubljana", "Bratislava", "Vilnius",
	"Riga", "Tallinn", "Helsinki", "Stockholm", "Oslo", "Copenhagen", "Reykjavik",
	"Dublin", "Edinburgh", "Cardiff", "Belfast", "Lisbon", "Porto", "Barcelona",
	"Valencia", "Seville", "Bilbao", "Marseille", "Lyon", "Nice", "Toulouse",
	"Strasbourg", "Lille", "Nantes", "Montpellier", "Bordeaux", "Rennes",
	"Toulon", "Grenoble", "Dijon", "Angers", "Le Havre", "Saint-Etienne", "Tours",
	"Limoges", "Amiens", "Perpignan", "Metz", "Besancon", "Boulogne-Billancourt",
	"Orleans", "Mulhouse", "Rouen", "Caen", "Nancy", "Saint-Denis", "Argenteuil",
	"Montreuil", "Roubaix", "Tourcoing", "Nanterre", "Avignon", "Creteil",
	"Dunkirk", "Poitiers", "Asnieres-sur-Seine", "Versailles", "Courbevoie",
	"Vitry-sur-Seine", "Colombes", "Aulnay-sous-Bois", "La Rochelle",
	"Rueil-Malmaison", "Antibes", "Saint-Maur-des-Fosses", "Champigny-sur-Marne",
	"Aubervilliers", "Cannes", "Beziers", "Bourges", "Colmar", "Drancy",
	"Merignac", "Saint-Nazaire", "Issy-les-Moulineaux", "Noisy-le-Grand", "Evry",
	"Cergy", "Pessac", "Venissieux", "Clichy", "Ivry-sur-Seine",
	"Levallois-Perret", "Troyes", "Neuilly-sur-Seine", "Antony", "Lorient",
	"Sarcelles", "Niort", "Le Mans", "Aix-en-Provence", "Montauban",
	"Villeurbanne", "Hyeres", "Cholet", "Meudon", "Chambery", "Maisons-Alfort",
	"Belfort", "Blois", "Annecy", "Boulogne-sur-Mer", "Brive-la-Gaillarde",
	"Chalon-sur-Saone", "Charleville-Mezieres", "Chartres", "Chateauroux",
	"Chaumont", "Cherbourg", "Creil", "Dax", "Dieppe", "Douai", "Dreux",
	"Epinay-sur-Seine", "Evreux", "Frejus", "Gap", "Gennevilliers", "Givors",
	"Grasse", "Haguenau", "La Ciotat", "La Seyne-sur-Mer", "Laval", "Le Creusot",
	"Le Perreux-sur-Marne", "Libourne", "Lunel", "Macon", "Mantes-la-Jolie",
	"Martigues", "Meaux", "Melun", "Menton", "Montbeliard", "Montlucon",
	"Montrouge", "Narbonne", "Neuilly-sur-Marne", "Nogent-sur-Marne", "Palaiseau",
	"Pantin", "Pierrefitte-sur-Seine", "Plaisir", "Pontault-Combault", "Pontoise",
	"Rambouillet", "Rosny-sous-Bois", "Saint-Brieuc", "Saint-Chamond",
	"Saint-Germain-en-Laye", "Saint-Jean-de-Luz", "Saint-Laurent-du-Var",
	"Saint-Leu", "Saint-Malo", "Saint-Mande", "Saint-Michel-sur-Orge",
	"Saint-Ouen", "Saint-Pol-sur-Mer", "Saint-Priest", "Saint-Quentin",
	"Saint-Raphael", "Sainte-Genevieves-des-Bois", "Sainte-Maxime",
	"Salon-de-Provence", "Sartrouville", "Savigny-sur-Orge", "Schiltigheim",
	"Sevran", "Sotteville-les-Rouen", "Stains", "Sucy-en-Brie", "Suresnes",
	"Taverny", "Thiais", "Thionville", "Torcy", "Trappes", "Tremblay-en-France",
	"Valence", "Valenciennes", "Vandoeuvre-les-Nancy", "Vaulx-en-Velin",
	"Vierzon", "Vigneux-sur-Seine", "Villeneuve-d'Ascq", "Villeneuve-la-Garenne",
	"Villeneuve-Saint-Georges", "Villepinte", "Vincennes", "Viry-Chatillon",
	"Wasquehal", "Wattrelos", "Wittenheim", "Yerres", "Yvetot", "Yzeure",
}

// Catalog is a fixed, de-duplicated list of city names.
type Catalog struct {
	names []string

	mu  sync.Mutex
	rng *rand.Rand
}

// Default returns a catalog of the built-in city list.
func Default() *Catalog {
	return New(defaultNames, nil)
}

// New builds a catalog from names, dropping blanks and case-insensitive
// duplicates while keeping first-seen order. A nil rng seeds one from the clock.
func New(names []string, rng *rand.Rand) *Catalog {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		k := strings.ToLower(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return &Catalog{names: out, rng: rng}
}

// Len returns the number of distinct names.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Names returns a copy of the catalog.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Sample returns n distinct names picked uniformly at random.
func (c *Catalog) Sample(n int) ([]string, error) {
	if n <= 0 || n > len(c.names) {
		return nil, fmt.Errorf("%w: want 1..%d, got %d", ErrSampleSize, len(c.names), n)
	}

	c.mu.Lock()
	perm := c.rng.Perm(len(c.names))
	c.mu.Unlock()

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = c.names[perm[i]]
	}
	return out, nil
}
